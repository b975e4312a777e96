package workflow

import (
	"sort"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
)

// RankCustomers ranks customers by total leakage within each country.
//
// Rank 1 is the largest leakage. Tied customers share a rank and the next
// distinct value takes its 1-based position (1, 1, 3). The percentile is
// (rank-1)/(n-1)*100 rounded to two places, 0 for a country of one, and the
// tier is read off the rounded percentile. The tier is independent of the
// absolute CustomerRiskProfile category and the two are expected to differ.
//
// Output is ordered by country, then rank, then customer_id.
func RankCustomers(rows []models.CustomerLeakage, rules config.LeakageRules) []models.CustomerLeakageRanked {
	partitions := make(map[string][]models.CustomerLeakage)
	for _, row := range rows {
		partitions[row.Country] = append(partitions[row.Country], row)
	}
	countries := make([]string, 0, len(partitions))
	for country := range partitions {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	results := make([]models.CustomerLeakageRanked, 0, len(rows))
	for _, country := range countries {
		results = append(results, rankPartition(partitions[country], rules)...)
	}
	return results
}

func rankPartition(rows []models.CustomerLeakage, rules config.LeakageRules) []models.CustomerLeakageRanked {
	sorted := make([]models.CustomerLeakage, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].TotalLeakage.Cmp(sorted[j].TotalLeakage); c != 0 {
			return c > 0
		}
		return sorted[i].CustomerId < sorted[j].CustomerId
	})

	n := len(sorted)
	results := make([]models.CustomerLeakageRanked, n)
	rank := 0
	for i, row := range sorted {
		if i == 0 || !row.TotalLeakage.Equal(sorted[i-1].TotalLeakage) {
			rank = i + 1
		}
		percentile := percentRank(rank, n)
		results[i] = models.CustomerLeakageRanked{
			CustomerId:        row.CustomerId,
			Country:           row.Country,
			TotalOrders:       row.TotalOrders,
			TotalRevenue:      row.TotalRevenue,
			TotalLeakage:      row.TotalLeakage,
			LeakageRank:       rank,
			LeakagePercentile: percentile,
			RiskTier:          percentileTier(percentile, rules),
		}
	}
	return results
}

func percentRank(rank int, size int) decimal.Decimal {
	if size <= 1 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(rank - 1)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(size - 1))).
		Round(2)
}

func percentileTier(percentile decimal.Decimal, rules config.LeakageRules) models.RiskCategory {
	switch {
	case percentile.GreaterThanOrEqual(rules.PercentileHigh):
		return models.RiskCategoryHigh
	case percentile.GreaterThanOrEqual(rules.PercentileMedium):
		return models.RiskCategoryMedium
	default:
		return models.RiskCategoryLow
	}
}
