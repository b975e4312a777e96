package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadLeakageRules_Defaults(t *testing.T) {
	t.Setenv("LEAKAGE_RULES_FILE", "")
	rules, err := LoadLeakageRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	defaults := DefaultLeakageRules()
	if !rules.MoneyTolerance.Equal(defaults.MoneyTolerance) || !rules.ValidDiscountMax.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("unexpected defaults: %+v", rules)
	}
	if rules.CustomerHighMinOrders != 5 {
		t.Fatalf("expected 5 orders for high risk, got %d", rules.CustomerHighMinOrders)
	}
}

func TestLoadLeakageRules_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := strings.Join([]string{
		"money_tolerance: \"0.05\"",
		"abuse_leakage: \"2500\"",
		"customer_high_min_orders: \"3\"",
		"percentile_high: \"95\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	t.Setenv("LEAKAGE_RULES_FILE", path)
	t.Setenv("LEAKAGE_ABUSE_LEAKAGE", "3000")

	rules, err := LoadLeakageRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if !rules.MoneyTolerance.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("expected tolerance from file, got %s", rules.MoneyTolerance)
	}
	if !rules.AbuseLeakage.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected env to override file, got %s", rules.AbuseLeakage)
	}
	if rules.CustomerHighMinOrders != 3 {
		t.Fatalf("expected 3, got %d", rules.CustomerHighMinOrders)
	}
	if !rules.PercentileHigh.Equal(decimal.NewFromInt(95)) || !rules.PercentileMedium.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected percentiles: %s / %s", rules.PercentileHigh, rules.PercentileMedium)
	}
}

func TestLoadLeakageRules_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{name: "not a number", env: "LEAKAGE_MONEY_TOLERANCE", val: "abc"},
		{name: "negative tolerance", env: "LEAKAGE_MONEY_TOLERANCE", val: "-1"},
		{name: "inverted discount bounds", env: "LEAKAGE_VALID_DISCOUNT_MIN", val: "90"},
		{name: "inverted percentiles", env: "LEAKAGE_PERCENTILE_MEDIUM", val: "99"},
		{name: "bad order count", env: "LEAKAGE_CUSTOMER_HIGH_MIN_ORDERS", val: "five"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LEAKAGE_RULES_FILE", "")
			t.Setenv(tt.env, tt.val)
			if _, err := LoadLeakageRules(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.env, tt.val)
			}
		})
	}
}

func TestLoadLeakageRules_MissingFile(t *testing.T) {
	t.Setenv("LEAKAGE_RULES_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadLeakageRules(); err == nil {
		t.Fatalf("expected an error for a missing rules file")
	}
}
