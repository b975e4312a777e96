package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const runInsertBatchSize = 500

// ErrDuplicateRunRequest is returned when a run with the same request key was
// already recorded.
var ErrDuplicateRunRequest = errors.New("leakage run already recorded for request key")

// LeakageRun is the header row of a persisted run. The company summary lives
// on it; the grouped aggregates and issues hang off RunId.
type LeakageRun struct {
	ID             string           `gorm:"size:36;primary_key" json:"id"`
	Dataset        string           `gorm:"size:100;index;not null" json:"dataset"`
	RequestKey     *string          `gorm:"size:100;uniqueIndex" json:"request_key,omitempty"`
	CorrelationId  string           `gorm:"size:64;index" json:"correlation_id"`
	RequestedBy    string           `gorm:"size:100" json:"requested_by,omitempty"`
	AnalysisDate   time.Time        `json:"analysis_date"`
	TotalExpected  decimal.Decimal  `gorm:"type:decimal(38,16)" json:"total_expected"`
	TotalRealized  decimal.Decimal  `gorm:"type:decimal(38,16)" json:"total_realized"`
	Diff           decimal.Decimal  `gorm:"type:decimal(38,16)" json:"diff"`
	LeakagePct     *decimal.Decimal `gorm:"type:decimal(38,16)" json:"leakage_pct"`
	OrderCount     int              `json:"order_count"`
	OrderItemCount int              `json:"order_item_count"`
	ProductCount   int              `json:"product_count"`
	CustomerCount  int              `json:"customer_count"`
	IssueCount     int              `json:"issue_count"`
	HighRiskCount  int              `json:"high_risk_count"`
	DurationMs     int64            `json:"duration_ms"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (LeakageRun) TableName() string {
	return "leakage_runs"
}

func (r LeakageRun) Summary() LeakageSummary {
	return LeakageSummary{
		AnalysisDate:  r.AnalysisDate,
		TotalExpected: r.TotalExpected,
		TotalRealized: r.TotalRealized,
		Diff:          r.Diff,
		LeakagePct:    r.LeakagePct,
	}
}

// RunOutputs is the persisted part of a run's output bundle.
type RunOutputs struct {
	Issues           []ValidationIssue
	ProductLeakages  []ProductLeakage
	ChannelAbuses    []ChannelDiscountAbuse
	CustomerProfiles []CustomerRiskProfile
	CustomerRankings []CustomerLeakageRanked
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// SaveLeakageRun writes the run header and every output row in one
// transaction. Output slices are copied before RunId is stamped.
func SaveLeakageRun(ctx context.Context, db *gorm.DB, run *LeakageRun, outputs *RunOutputs) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}
	if outputs == nil {
		outputs = &RunOutputs{}
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.Create(run).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateRunRequest
		}
		return fmt.Errorf("create leakage run: %w", err)
	}

	issues := stampRunId(outputs.Issues, run.ID, func(r *ValidationIssue, id string) { r.RunId = id; r.ID = 0 })
	if err := createInBatches(tx, issues); err != nil {
		return fmt.Errorf("create leakage issues: %w", err)
	}
	products := stampRunId(outputs.ProductLeakages, run.ID, func(r *ProductLeakage, id string) { r.RunId = id; r.ID = 0 })
	if err := createInBatches(tx, products); err != nil {
		return fmt.Errorf("create product leakages: %w", err)
	}
	channels := stampRunId(outputs.ChannelAbuses, run.ID, func(r *ChannelDiscountAbuse, id string) { r.RunId = id; r.ID = 0 })
	if err := createInBatches(tx, channels); err != nil {
		return fmt.Errorf("create channel discount abuses: %w", err)
	}
	profiles := stampRunId(outputs.CustomerProfiles, run.ID, func(r *CustomerRiskProfile, id string) { r.RunId = id; r.ID = 0 })
	if err := createInBatches(tx, profiles); err != nil {
		return fmt.Errorf("create customer risk profiles: %w", err)
	}
	rankings := stampRunId(outputs.CustomerRankings, run.ID, func(r *CustomerLeakageRanked, id string) { r.RunId = id; r.ID = 0 })
	if err := createInBatches(tx, rankings); err != nil {
		return fmt.Errorf("create customer rankings: %w", err)
	}

	return tx.Commit().Error
}

func stampRunId[T any](rows []T, runId string, stamp func(*T, string)) []T {
	out := make([]T, len(rows))
	copy(out, rows)
	for i := range out {
		stamp(&out[i], runId)
	}
	return out
}

func createInBatches[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, runInsertBatchSize).Error
}

func GetLeakageRun(ctx context.Context, runId string) (*LeakageRun, error) {
	db := config.GetDB()
	var run LeakageRun
	err := db.WithContext(ctx).Where("id = ?", runId).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetLeakageRunByRequestKey looks the key up on db, the handle the run was
// saved through.
func GetLeakageRunByRequestKey(ctx context.Context, db *gorm.DB, requestKey string) (*LeakageRun, error) {
	if db == nil {
		return nil, errors.New("database not configured")
	}
	var run LeakageRun
	err := db.WithContext(ctx).Where("request_key = ?", requestKey).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListLeakageRuns returns the newest runs first, optionally for one dataset.
func ListLeakageRuns(ctx context.Context, dataset string, limit int) ([]*LeakageRun, error) {
	db := config.GetDB()
	var results []*LeakageRun

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	dbCtx := db.WithContext(ctx)
	if dataset != "" {
		dbCtx = dbCtx.Where("dataset = ?", dataset)
	}
	err := dbCtx.Order("created_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetRunIssues(ctx context.Context, runId string, issueKind *IssueKind) ([]*ValidationIssue, error) {
	db := config.GetDB()
	var results []*ValidationIssue

	dbCtx := db.WithContext(ctx).Where("run_id = ?", runId)
	if issueKind != nil && *issueKind != "" {
		dbCtx = dbCtx.Where("issue_kind = ?", *issueKind)
	}
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetRunProductLeakages(ctx context.Context, runId string) ([]*ProductLeakage, error) {
	db := config.GetDB()
	var results []*ProductLeakage
	err := db.WithContext(ctx).Where("run_id = ?", runId).Order("leakage DESC").Order("product_id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetRunChannelAbuses(ctx context.Context, runId string) ([]*ChannelDiscountAbuse, error) {
	db := config.GetDB()
	var results []*ChannelDiscountAbuse
	err := db.WithContext(ctx).Where("run_id = ?", runId).Order("source").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetRunCustomerRiskProfiles(ctx context.Context, runId string, risk *RiskCategory) ([]*CustomerRiskProfile, error) {
	db := config.GetDB()
	var results []*CustomerRiskProfile

	dbCtx := db.WithContext(ctx).Where("run_id = ?", runId)
	if risk != nil && *risk != "" {
		dbCtx = dbCtx.Where("risk_category = ?", *risk)
	}
	if err := dbCtx.Order("total_leakage DESC").Order("customer_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetRunCustomerRankings(ctx context.Context, runId string, country *string, tier *RiskCategory) ([]*CustomerLeakageRanked, error) {
	db := config.GetDB()
	var results []*CustomerLeakageRanked

	dbCtx := db.WithContext(ctx).Where("run_id = ?", runId)
	if country != nil && *country != "" {
		dbCtx = dbCtx.Where("country = ?", *country)
	}
	if tier != nil && *tier != "" {
		dbCtx = dbCtx.Where("risk_tier = ?", *tier)
	}
	if err := dbCtx.Order("country").Order("leakage_rank").Order("customer_id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
