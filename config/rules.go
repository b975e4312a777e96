package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// LeakageRules holds the business thresholds used by reconciliation,
// aggregation and ranking.
//
// Sources, later wins:
// - built-in defaults (DefaultLeakageRules)
// - YAML file at LEAKAGE_RULES_FILE
// - one env var per rule (LEAKAGE_MONEY_TOLERANCE, ...)
type LeakageRules struct {
	MoneyTolerance decimal.Decimal

	// raw integrity bounds for discount_pct
	RawDiscountMin decimal.Decimal
	RawDiscountMax decimal.Decimal
	// reconciliation bounds; anything above ValidDiscountMax is never legitimate
	ValidDiscountMin decimal.Decimal
	ValidDiscountMax decimal.Decimal

	AbuseAvgDiscountPct decimal.Decimal
	AbuseLeakage        decimal.Decimal

	CustomerHighLeakage   decimal.Decimal
	CustomerHighMinOrders int
	CustomerMediumLeakage decimal.Decimal

	PercentileHigh   decimal.Decimal
	PercentileMedium decimal.Decimal
}

type leakageRulesFile struct {
	MoneyTolerance        string `yaml:"money_tolerance"`
	RawDiscountMin        string `yaml:"raw_discount_min"`
	RawDiscountMax        string `yaml:"raw_discount_max"`
	ValidDiscountMin      string `yaml:"valid_discount_min"`
	ValidDiscountMax      string `yaml:"valid_discount_max"`
	AbuseAvgDiscountPct   string `yaml:"abuse_avg_discount_pct"`
	AbuseLeakage          string `yaml:"abuse_leakage"`
	CustomerHighLeakage   string `yaml:"customer_high_leakage"`
	CustomerHighMinOrders string `yaml:"customer_high_min_orders"`
	CustomerMediumLeakage string `yaml:"customer_medium_leakage"`
	PercentileHigh        string `yaml:"percentile_high"`
	PercentileMedium      string `yaml:"percentile_medium"`
}

func DefaultLeakageRules() LeakageRules {
	return LeakageRules{
		MoneyTolerance:        decimal.RequireFromString("0.01"),
		RawDiscountMin:        decimal.Zero,
		RawDiscountMax:        decimal.NewFromInt(100),
		ValidDiscountMin:      decimal.Zero,
		ValidDiscountMax:      decimal.NewFromInt(80),
		AbuseAvgDiscountPct:   decimal.NewFromInt(40),
		AbuseLeakage:          decimal.NewFromInt(1000),
		CustomerHighLeakage:   decimal.NewFromInt(500),
		CustomerHighMinOrders: 5,
		CustomerMediumLeakage: decimal.NewFromInt(100),
		PercentileHigh:        decimal.NewFromInt(90),
		PercentileMedium:      decimal.NewFromInt(70),
	}
}

// LoadLeakageRules resolves the rules from defaults, file and env.
func LoadLeakageRules() (LeakageRules, error) {
	rules := DefaultLeakageRules()

	if path := strings.TrimSpace(os.Getenv("LEAKAGE_RULES_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return rules, fmt.Errorf("read rules file %s: %w", path, err)
		}
		if err := rules.applyYAML(data); err != nil {
			return rules, fmt.Errorf("rules file %s: %w", path, err)
		}
	}

	if err := rules.applyEnv(); err != nil {
		return rules, err
	}
	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

func (r *LeakageRules) applyYAML(data []byte) error {
	var f leakageRulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	return r.apply(map[string]string{
		"money_tolerance":          f.MoneyTolerance,
		"raw_discount_min":         f.RawDiscountMin,
		"raw_discount_max":         f.RawDiscountMax,
		"valid_discount_min":       f.ValidDiscountMin,
		"valid_discount_max":       f.ValidDiscountMax,
		"abuse_avg_discount_pct":   f.AbuseAvgDiscountPct,
		"abuse_leakage":            f.AbuseLeakage,
		"customer_high_leakage":    f.CustomerHighLeakage,
		"customer_high_min_orders": f.CustomerHighMinOrders,
		"customer_medium_leakage":  f.CustomerMediumLeakage,
		"percentile_high":          f.PercentileHigh,
		"percentile_medium":        f.PercentileMedium,
	})
}

func (r *LeakageRules) applyEnv() error {
	values := make(map[string]string)
	for _, name := range ruleNames {
		values[name] = os.Getenv("LEAKAGE_" + strings.ToUpper(name))
	}
	return r.apply(values)
}

var ruleNames = []string{
	"money_tolerance",
	"raw_discount_min",
	"raw_discount_max",
	"valid_discount_min",
	"valid_discount_max",
	"abuse_avg_discount_pct",
	"abuse_leakage",
	"customer_high_leakage",
	"customer_high_min_orders",
	"customer_medium_leakage",
	"percentile_high",
	"percentile_medium",
}

// apply sets every non-blank value; blank means "keep current".
func (r *LeakageRules) apply(values map[string]string) error {
	targets := map[string]*decimal.Decimal{
		"money_tolerance":         &r.MoneyTolerance,
		"raw_discount_min":        &r.RawDiscountMin,
		"raw_discount_max":        &r.RawDiscountMax,
		"valid_discount_min":      &r.ValidDiscountMin,
		"valid_discount_max":      &r.ValidDiscountMax,
		"abuse_avg_discount_pct":  &r.AbuseAvgDiscountPct,
		"abuse_leakage":           &r.AbuseLeakage,
		"customer_high_leakage":   &r.CustomerHighLeakage,
		"customer_medium_leakage": &r.CustomerMediumLeakage,
		"percentile_high":         &r.PercentileHigh,
		"percentile_medium":       &r.PercentileMedium,
	}
	for _, name := range ruleNames {
		v := strings.TrimSpace(values[name])
		if v == "" {
			continue
		}
		if name == "customer_high_min_orders" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			r.CustomerHighMinOrders = n
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*targets[name] = d
	}
	return nil
}

func (r LeakageRules) Validate() error {
	if r.MoneyTolerance.IsNegative() {
		return fmt.Errorf("money_tolerance must not be negative")
	}
	if r.RawDiscountMin.GreaterThan(r.RawDiscountMax) {
		return fmt.Errorf("raw_discount_min %s > raw_discount_max %s", r.RawDiscountMin, r.RawDiscountMax)
	}
	if r.ValidDiscountMin.GreaterThan(r.ValidDiscountMax) {
		return fmt.Errorf("valid_discount_min %s > valid_discount_max %s", r.ValidDiscountMin, r.ValidDiscountMax)
	}
	if r.CustomerMediumLeakage.GreaterThan(r.CustomerHighLeakage) {
		return fmt.Errorf("customer_medium_leakage %s > customer_high_leakage %s", r.CustomerMediumLeakage, r.CustomerHighLeakage)
	}
	if r.PercentileMedium.GreaterThan(r.PercentileHigh) {
		return fmt.Errorf("percentile_medium %s > percentile_high %s", r.PercentileMedium, r.PercentileHigh)
	}
	return nil
}
