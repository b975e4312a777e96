package reports

import (
	"context"
	"sort"
	"strconv"

	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/utils"
)

// LeakageReport is the read side of one run: what the API serves and the
// workbook exports.
type LeakageReport struct {
	Run              *models.LeakageRun             `json:"run,omitempty"`
	Summary          models.LeakageSummary          `json:"summary"`
	IssueCounts      []IssueCount                   `json:"issue_counts"`
	Issues           []models.ValidationIssue       `json:"issues"`
	ProductLeakages  []models.ProductLeakage        `json:"product_leakages"`
	ChannelAbuses    []models.ChannelDiscountAbuse  `json:"channel_abuses"`
	CustomerProfiles []models.CustomerRiskProfile   `json:"customer_profiles"`
	CustomerRankings []models.CustomerLeakageRanked `json:"customer_rankings"`
}

type IssueCount struct {
	IssueKind models.IssueKind `json:"issue_kind"`
	Count     int              `json:"count"`
}

// IssueCountsByKind lists every issue kind in report order, zero counts included.
func IssueCountsByKind(issues []models.ValidationIssue) []IssueCount {
	counts := models.CountIssuesByKind(issues)
	results := make([]IssueCount, 0, len(models.AllIssueKinds))
	for _, kind := range models.AllIssueKinds {
		results = append(results, IssueCount{IssueKind: kind, Count: counts[kind]})
	}
	return results
}

// HighRiskCustomers filters profiles by category (High when empty) sorted by
// leakage, largest first.
func HighRiskCustomers(profiles []models.CustomerRiskProfile, category models.RiskCategory) []models.CustomerRiskProfile {
	if category == "" {
		category = models.RiskCategoryHigh
	}
	var results []models.CustomerRiskProfile
	for _, p := range profiles {
		if p.RiskCategory == category {
			results = append(results, p)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].TotalLeakage.Cmp(results[j].TotalLeakage); c != 0 {
			return c > 0
		}
		return results[i].CustomerId < results[j].CustomerId
	})
	return results
}

// TopLeakingProducts returns up to n products by leakage, largest first. n <= 0
// returns all.
func TopLeakingProducts(rows []models.ProductLeakage, n int) []models.ProductLeakage {
	results := make([]models.ProductLeakage, len(rows))
	copy(results, rows)
	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].Leakage.Cmp(results[j].Leakage); c != 0 {
			return c > 0
		}
		return results[i].ProductId < results[j].ProductId
	})
	if n > 0 && n < len(results) {
		results = results[:n]
	}
	return results
}

// AbusedChannels keeps flagged channels, largest discount leakage first.
func AbusedChannels(rows []models.ChannelDiscountAbuse) []models.ChannelDiscountAbuse {
	var results []models.ChannelDiscountAbuse
	for _, row := range rows {
		if row.AbuseFlag == models.AbuseFlagYes {
			results = append(results, row)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].DiscountLeakage.Cmp(results[j].DiscountLeakage); c != 0 {
			return c > 0
		}
		return results[i].Source < results[j].Source
	})
	return results
}

// RankedCustomersByTier filters rankings by country and tier; empty matches all.
func RankedCustomersByTier(rows []models.CustomerLeakageRanked, country string, tier models.RiskCategory) []models.CustomerLeakageRanked {
	var results []models.CustomerLeakageRanked
	for _, row := range rows {
		if country != "" && row.Country != country {
			continue
		}
		if tier != "" && row.RiskTier != tier {
			continue
		}
		results = append(results, row)
	}
	return results
}

// Presentation rounding. Values are rounded to two places on copies; the
// stored aggregates keep full precision.

func PresentSummary(s models.LeakageSummary) models.LeakageSummary {
	s.TotalExpected = utils.RoundMoney(s.TotalExpected)
	s.TotalRealized = utils.RoundMoney(s.TotalRealized)
	s.Diff = utils.RoundMoney(s.Diff)
	s.LeakagePct = utils.RoundMoneyPtr(s.LeakagePct)
	return s
}

func PresentProductLeakages(rows []models.ProductLeakage) []models.ProductLeakage {
	results := make([]models.ProductLeakage, len(rows))
	for i, row := range rows {
		row.ExpectedRevenue = utils.RoundMoney(row.ExpectedRevenue)
		row.RealizedRevenue = utils.RoundMoney(row.RealizedRevenue)
		row.Leakage = utils.RoundMoney(row.Leakage)
		row.LeakagePct = utils.RoundMoneyPtr(row.LeakagePct)
		results[i] = row
	}
	return results
}

func PresentChannelAbuses(rows []models.ChannelDiscountAbuse) []models.ChannelDiscountAbuse {
	results := make([]models.ChannelDiscountAbuse, len(rows))
	for i, row := range rows {
		row.AvgDiscountPct = utils.RoundMoney(row.AvgDiscountPct)
		row.TotalDiscountValue = utils.RoundMoney(row.TotalDiscountValue)
		row.DiscountLeakage = utils.RoundMoney(row.DiscountLeakage)
		results[i] = row
	}
	return results
}

func PresentCustomerProfiles(rows []models.CustomerRiskProfile) []models.CustomerRiskProfile {
	results := make([]models.CustomerRiskProfile, len(rows))
	for i, row := range rows {
		row.TotalRevenue = utils.RoundMoney(row.TotalRevenue)
		row.TotalDiscount = utils.RoundMoney(row.TotalDiscount)
		row.TotalLeakage = utils.RoundMoney(row.TotalLeakage)
		row.LeakagePctOfRevenue = utils.RoundMoneyPtr(row.LeakagePctOfRevenue)
		results[i] = row
	}
	return results
}

func PresentCustomerRankings(rows []models.CustomerLeakageRanked) []models.CustomerLeakageRanked {
	results := make([]models.CustomerLeakageRanked, len(rows))
	for i, row := range rows {
		row.TotalRevenue = utils.RoundMoney(row.TotalRevenue)
		row.TotalLeakage = utils.RoundMoney(row.TotalLeakage)
		results[i] = row
	}
	return results
}

// Present rounds every money column of the report.
func (r *LeakageReport) Present() *LeakageReport {
	out := *r
	out.Summary = PresentSummary(r.Summary)
	out.ProductLeakages = PresentProductLeakages(r.ProductLeakages)
	out.ChannelAbuses = PresentChannelAbuses(r.ChannelAbuses)
	out.CustomerProfiles = PresentCustomerProfiles(r.CustomerProfiles)
	out.CustomerRankings = PresentCustomerRankings(r.CustomerRankings)
	return &out
}

// RunOverview is the run header with its presented summary and issue tally.
type RunOverview struct {
	Run         *models.LeakageRun    `json:"run"`
	Summary     models.LeakageSummary `json:"summary"`
	IssueCounts []IssueCount          `json:"issue_counts"`
}

// Persisted report getters, cached per run.

func GetRunOverview(ctx context.Context, runId string) (*RunOverview, error) {
	key := runReportKey(runId, "overview")
	return cachedReport(ctx, "RunOverview", key, "", func(ctx context.Context) (*RunOverview, error) {
		run, err := models.GetLeakageRun(ctx, runId)
		if err != nil {
			return nil, err
		}
		issues, err := models.GetRunIssues(ctx, runId, nil)
		if err != nil {
			return nil, err
		}
		return &RunOverview{
			Run:         run,
			Summary:     PresentSummary(run.Summary()),
			IssueCounts: IssueCountsByKind(derefAll(issues)),
		}, nil
	})
}

func GetLeakageRuns(ctx context.Context, dataset string, limit int) ([]*models.LeakageRun, error) {
	key := datasetReportKey(dataset, "runs:"+strconv.Itoa(limit))
	return cachedReport(ctx, "LeakageRuns", key, datasetKeySet(dataset), func(ctx context.Context) ([]*models.LeakageRun, error) {
		return models.ListLeakageRuns(ctx, dataset, limit)
	})
}

func GetRunIssues(ctx context.Context, runId string, kind models.IssueKind) ([]*models.ValidationIssue, error) {
	key := runReportKey(runId, "issues:"+string(kind))
	return cachedReport(ctx, "RunIssues", key, "", func(ctx context.Context) ([]*models.ValidationIssue, error) {
		return models.GetRunIssues(ctx, runId, &kind)
	})
}

func GetProductLeakageReport(ctx context.Context, runId string, limit int) ([]models.ProductLeakage, error) {
	key := runReportKey(runId, "products:"+strconv.Itoa(limit))
	return cachedReport(ctx, "ProductLeakage", key, "", func(ctx context.Context) ([]models.ProductLeakage, error) {
		rows, err := models.GetRunProductLeakages(ctx, runId)
		if err != nil {
			return nil, err
		}
		return PresentProductLeakages(TopLeakingProducts(derefAll(rows), limit)), nil
	})
}

func GetChannelAbuseReport(ctx context.Context, runId string, abusedOnly bool) ([]models.ChannelDiscountAbuse, error) {
	key := runReportKey(runId, "channels:"+strconv.FormatBool(abusedOnly))
	return cachedReport(ctx, "ChannelDiscountAbuse", key, "", func(ctx context.Context) ([]models.ChannelDiscountAbuse, error) {
		rows, err := models.GetRunChannelAbuses(ctx, runId)
		if err != nil {
			return nil, err
		}
		channels := derefAll(rows)
		if abusedOnly {
			channels = AbusedChannels(channels)
		}
		return PresentChannelAbuses(channels), nil
	})
}

func GetCustomerRiskReport(ctx context.Context, runId string, risk models.RiskCategory) ([]models.CustomerRiskProfile, error) {
	key := runReportKey(runId, "customers:"+string(risk))
	return cachedReport(ctx, "CustomerRisk", key, "", func(ctx context.Context) ([]models.CustomerRiskProfile, error) {
		rows, err := models.GetRunCustomerRiskProfiles(ctx, runId, &risk)
		if err != nil {
			return nil, err
		}
		return PresentCustomerProfiles(derefAll(rows)), nil
	})
}

func GetCustomerRankingReport(ctx context.Context, runId string, country string, tier models.RiskCategory) ([]models.CustomerLeakageRanked, error) {
	key := runReportKey(runId, "rankings:"+country+":"+string(tier))
	return cachedReport(ctx, "CustomerRanking", key, "", func(ctx context.Context) ([]models.CustomerLeakageRanked, error) {
		rows, err := models.GetRunCustomerRankings(ctx, runId, &country, &tier)
		if err != nil {
			return nil, err
		}
		return PresentCustomerRankings(derefAll(rows)), nil
	})
}

// GetLeakageReport assembles a full persisted run for export.
func GetLeakageReport(ctx context.Context, runId string) (*LeakageReport, error) {
	run, err := models.GetLeakageRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	issues, err := models.GetRunIssues(ctx, runId, nil)
	if err != nil {
		return nil, err
	}
	products, err := models.GetRunProductLeakages(ctx, runId)
	if err != nil {
		return nil, err
	}
	channels, err := models.GetRunChannelAbuses(ctx, runId)
	if err != nil {
		return nil, err
	}
	profiles, err := models.GetRunCustomerRiskProfiles(ctx, runId, nil)
	if err != nil {
		return nil, err
	}
	rankings, err := models.GetRunCustomerRankings(ctx, runId, nil, nil)
	if err != nil {
		return nil, err
	}
	issueRows := derefAll(issues)
	return &LeakageReport{
		Run:              run,
		Summary:          run.Summary(),
		IssueCounts:      IssueCountsByKind(issueRows),
		Issues:           issueRows,
		ProductLeakages:  derefAll(products),
		ChannelAbuses:    derefAll(channels),
		CustomerProfiles: derefAll(profiles),
		CustomerRankings: derefAll(rankings),
	}, nil
}

func derefAll[T any](rows []*T) []T {
	results := make([]T, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			results = append(results, *row)
		}
	}
	return results
}
