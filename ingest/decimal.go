package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyPrefix = regexp.MustCompile(`^(\p{Sc}|[A-Z]{3})\s*`)
	currencySuffix = regexp.MustCompile(`\s*(\p{Sc}|[A-Z]{3})$`)
	// plain digits, or digits grouped by thousands commas, with an optional fraction
	amountPattern = regexp.MustCompile(`^(\d+|\d{1,3}(,\d{3})+)?(\.\d+)?$`)
)

// ParseAmount reads a money or percentage cell. Formatted input such as
// "1,234.50", "$ 20", "USD -5", "(12.00)" or "12.5%" is accepted. Anything
// else that is not part of the number is an error.
func ParseAmount(value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	invalid := fmt.Errorf("invalid value %q", value)

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		// accounting negative
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	s = currencySuffix.ReplaceAllString(s, "")
	s = currencyPrefix.ReplaceAllString(s, "")
	if sign := s[:min(1, len(s))]; sign == "-" || sign == "+" {
		if neg && sign == "-" {
			return decimal.Zero, invalid
		}
		neg = neg || sign == "-"
		s = strings.TrimSpace(s[1:])
		s = currencyPrefix.ReplaceAllString(s, "")
	}

	if !strings.ContainsAny(s, "0123456789") || !amountPattern.MatchString(s) {
		return decimal.Zero, invalid
	}
	clean := strings.ReplaceAll(s, ",", "")
	if neg {
		clean = "-" + clean
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value %q: %w", value, err)
	}
	return d, nil
}
