package workflow

import (
	"sort"
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/shopspring/decimal"
)

// Aggregates are exact decimal reductions over the validated layer. Nothing
// is rounded here; rounding belongs to presentation.

func SummarizeLeakage(items []models.ValidatedOrderItem, analysisDate time.Time) models.LeakageSummary {
	var expected, realized decimal.Decimal
	for _, item := range items {
		expected = expected.Add(item.ExpectedLineTotal)
		realized = realized.Add(item.LineTotal)
	}
	diff := expected.Sub(realized)
	return models.LeakageSummary{
		AnalysisDate:  analysisDate,
		TotalExpected: expected,
		TotalRealized: realized,
		Diff:          diff,
		LeakagePct:    utils.PercentOf(diff, realized),
	}
}

// AggregateProductLeakage groups items by product_id. Items whose product is
// not in the catalog keep their own group with blank name and category, so
// the product leakages always add up to the company diff.
func AggregateProductLeakage(items []models.ValidatedOrderItem, products []models.ValidatedProduct) []models.ProductLeakage {
	catalog := make(map[string]models.ValidatedProduct, len(products))
	for _, p := range products {
		if _, seen := catalog[p.ProductId]; !seen {
			catalog[p.ProductId] = p
		}
	}

	groups := make(map[string]*models.ProductLeakage)
	for _, item := range items {
		g, ok := groups[item.ProductId]
		if !ok {
			g = &models.ProductLeakage{ProductId: item.ProductId}
			if p, found := catalog[item.ProductId]; found {
				g.ProductName = p.Name
				g.Category = p.Category
			}
			groups[item.ProductId] = g
		}
		g.UnitsSold += item.Quantity
		g.ExpectedRevenue = g.ExpectedRevenue.Add(item.ExpectedLineTotal)
		g.RealizedRevenue = g.RealizedRevenue.Add(item.LineTotal)
	}

	results := make([]models.ProductLeakage, 0, len(groups))
	for _, g := range groups {
		g.Leakage = g.ExpectedRevenue.Sub(g.RealizedRevenue)
		g.LeakagePct = utils.PercentOf(g.Leakage, g.ExpectedRevenue)
		results = append(results, *g)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ProductId < results[j].ProductId
	})
	return results
}

// AggregateChannelDiscountAbuse groups orders by source. Either threshold on
// its own raises the abuse flag.
func AggregateChannelDiscountAbuse(orders []models.ValidatedOrder, rules config.LeakageRules) []models.ChannelDiscountAbuse {
	type channelTotals struct {
		row         models.ChannelDiscountAbuse
		discountSum decimal.Decimal
	}
	groups := make(map[string]*channelTotals)
	for _, o := range orders {
		g, ok := groups[o.Source]
		if !ok {
			g = &channelTotals{row: models.ChannelDiscountAbuse{Source: o.Source}}
			groups[o.Source] = g
		}
		g.row.Orders++
		g.discountSum = g.discountSum.Add(o.DiscountPct)
		g.row.TotalDiscountValue = g.row.TotalDiscountValue.Add(o.DiscountValue())
		g.row.DiscountLeakage = g.row.DiscountLeakage.Add(o.DiscountDiff)
	}

	results := make([]models.ChannelDiscountAbuse, 0, len(groups))
	for _, g := range groups {
		row := g.row
		row.AvgDiscountPct = g.discountSum.Div(decimal.NewFromInt(int64(row.Orders)))
		row.AbuseFlag = models.AbuseFlagNo
		if row.AvgDiscountPct.GreaterThan(rules.AbuseAvgDiscountPct) || row.DiscountLeakage.GreaterThan(rules.AbuseLeakage) {
			row.AbuseFlag = models.AbuseFlagYes
		}
		results = append(results, row)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})
	return results
}

type customerKey struct {
	customerId string
	country    string
}

// AggregateCustomerRisk groups orders by (customer_id, country) and returns
// both the absolute risk profile and the ranking input. Country comes from
// the customer record, or from the order when the customer is unknown.
func AggregateCustomerRisk(orders []models.ValidatedOrder, customers []models.ValidatedCustomer, rules config.LeakageRules) ([]models.CustomerRiskProfile, []models.CustomerLeakage) {
	countries := make(map[string]string, len(customers))
	for _, c := range customers {
		if _, seen := countries[c.CustomerId]; !seen {
			countries[c.CustomerId] = c.Country
		}
	}

	groups := make(map[customerKey]*models.CustomerRiskProfile)
	for _, o := range orders {
		country, ok := countries[o.CustomerId]
		if !ok {
			country = o.Country
		}
		key := customerKey{customerId: o.CustomerId, country: country}
		g, ok := groups[key]
		if !ok {
			g = &models.CustomerRiskProfile{CustomerId: o.CustomerId, Country: country}
			groups[key] = g
		}
		g.TotalOrders++
		g.TotalRevenue = g.TotalRevenue.Add(o.Total)
		g.TotalDiscount = g.TotalDiscount.Add(o.DiscountValue())
		if o.DiscountStatus != models.DiscountStatusOk {
			g.DiscountIssues++
		}
		g.TotalLeakage = g.TotalLeakage.Add(o.DiscountDiff)
	}

	profiles := make([]models.CustomerRiskProfile, 0, len(groups))
	for _, g := range groups {
		g.LeakagePctOfRevenue = utils.PercentOf(g.TotalLeakage, g.TotalRevenue)
		g.RiskCategory = classifyCustomerRisk(g.TotalLeakage, g.TotalOrders, rules)
		profiles = append(profiles, *g)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CustomerId != profiles[j].CustomerId {
			return profiles[i].CustomerId < profiles[j].CustomerId
		}
		return profiles[i].Country < profiles[j].Country
	})

	leakages := make([]models.CustomerLeakage, len(profiles))
	for i, p := range profiles {
		leakages[i] = models.CustomerLeakage{
			CustomerId:   p.CustomerId,
			Country:      p.Country,
			TotalOrders:  p.TotalOrders,
			TotalRevenue: p.TotalRevenue,
			TotalLeakage: p.TotalLeakage,
		}
	}
	return profiles, leakages
}

// classifyCustomerRisk checks High before Medium. A large leakage spread over
// few orders falls through both and is Low.
func classifyCustomerRisk(leakage decimal.Decimal, orders int, rules config.LeakageRules) models.RiskCategory {
	switch {
	case leakage.GreaterThan(rules.CustomerHighLeakage) && orders > rules.CustomerHighMinOrders:
		return models.RiskCategoryHigh
	case leakage.GreaterThanOrEqual(rules.CustomerMediumLeakage) && leakage.LessThanOrEqual(rules.CustomerHighLeakage):
		return models.RiskCategoryMedium
	default:
		return models.RiskCategoryLow
	}
}
