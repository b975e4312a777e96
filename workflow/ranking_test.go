package workflow

import (
	"fmt"
	"testing"

	"github.com/mmdatafocus/leakage_backend/models"
)

func leakage(customerId, country, total string) models.CustomerLeakage {
	return models.CustomerLeakage{CustomerId: customerId, Country: country, TotalOrders: 1, TotalLeakage: dec(total)}
}

func TestRankCustomers_TiesShareRankWithGaps(t *testing.T) {
	rows := RankCustomers([]models.CustomerLeakage{
		leakage("D", "US", "100"),
		leakage("B", "US", "800"),
		leakage("C", "US", "500"),
		leakage("A", "US", "800"),
	}, testRules)

	expected := []struct {
		customerId string
		rank       int
		percentile string
		tier       models.RiskCategory
	}{
		{"A", 1, "0", models.RiskCategoryLow},
		{"B", 1, "0", models.RiskCategoryLow},
		{"C", 3, "66.67", models.RiskCategoryLow},
		{"D", 4, "100", models.RiskCategoryHigh},
	}
	if len(rows) != len(expected) {
		t.Fatalf("expected %d rows, got %d", len(expected), len(rows))
	}
	for i, w := range expected {
		got := rows[i]
		if got.CustomerId != w.customerId || got.LeakageRank != w.rank || !got.LeakagePercentile.Equal(dec(w.percentile)) || got.RiskTier != w.tier {
			t.Fatalf("row %d: expected %+v, got %s rank=%d pct=%s tier=%s", i, w, got.CustomerId, got.LeakageRank, got.LeakagePercentile, got.RiskTier)
		}
	}
}

func TestRankCustomers_PartitionsByCountry(t *testing.T) {
	rows := RankCustomers([]models.CustomerLeakage{
		leakage("U1", "US", "10"),
		leakage("G1", "DE", "300"),
		leakage("U2", "US", "20"),
		leakage("G2", "DE", "100"),
		leakage("F1", "FR", "999"),
	}, testRules)

	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = fmt.Sprintf("%s:%s:%d:%s", r.Country, r.CustomerId, r.LeakageRank, r.LeakagePercentile)
	}
	expected := []string{"DE:G1:1:0", "DE:G2:2:100", "FR:F1:1:0", "US:U2:1:0", "US:U1:2:100"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestRankCustomers_TierBoundaries(t *testing.T) {
	var input []models.CustomerLeakage
	for i := 0; i <= 10; i++ {
		// leakages 100, 90, ... 0 give percentiles 0, 10, ... 100
		input = append(input, leakage(fmt.Sprintf("C%02d", i), "US", fmt.Sprint(100-10*i)))
	}
	rows := RankCustomers(input, testRules)
	for _, r := range rows {
		var expected models.RiskCategory
		switch {
		case r.LeakagePercentile.GreaterThanOrEqual(dec("90")):
			expected = models.RiskCategoryHigh
		case r.LeakagePercentile.GreaterThanOrEqual(dec("70")):
			expected = models.RiskCategoryMedium
		default:
			expected = models.RiskCategoryLow
		}
		if r.RiskTier != expected {
			t.Fatalf("%s: percentile %s expected %s, got %s", r.CustomerId, r.LeakagePercentile, expected, r.RiskTier)
		}
	}
	if rows[7].RiskTier != models.RiskCategoryMedium || !rows[7].LeakagePercentile.Equal(dec("70")) {
		t.Fatalf("expected rank 8 at percentile 70 to be Medium, got %+v", rows[7])
	}
	if rows[9].RiskTier != models.RiskCategoryHigh || !rows[9].LeakagePercentile.Equal(dec("90")) {
		t.Fatalf("expected rank 10 at percentile 90 to be High, got %+v", rows[9])
	}
}

func TestRankCustomers_SingleCustomerPartition(t *testing.T) {
	rows := RankCustomers([]models.CustomerLeakage{leakage("A", "NZ", "-5")}, testRules)
	if len(rows) != 1 || rows[0].LeakageRank != 1 || !rows[0].LeakagePercentile.IsZero() || rows[0].RiskTier != models.RiskCategoryLow {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRankCustomers_LargestIsZeroSmallestIsHundred(t *testing.T) {
	rows := RankCustomers([]models.CustomerLeakage{
		leakage("A", "US", "-20"),
		leakage("B", "US", "7.5"),
		leakage("C", "US", "3"),
	}, testRules)
	if rows[0].CustomerId != "B" || rows[0].LeakageRank != 1 || !rows[0].LeakagePercentile.IsZero() {
		t.Fatalf("unexpected top row %+v", rows[0])
	}
	if rows[2].CustomerId != "A" || !rows[2].LeakagePercentile.Equal(dec("100")) {
		t.Fatalf("unexpected bottom row %+v", rows[2])
	}
}

func TestRankCustomers_Empty(t *testing.T) {
	if rows := RankCustomers(nil, testRules); len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}
