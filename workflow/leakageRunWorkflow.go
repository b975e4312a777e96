package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/models/reports"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultRunLockTTL = 10 * time.Minute

// ResultSink receives the output bundle of a finished run.
type ResultSink interface {
	SaveRun(ctx context.Context, run *models.LeakageRun, outputs *models.RunOutputs) error
	FindRunByRequestKey(ctx context.Context, requestKey string) (*models.LeakageRun, error)
}

// GormSink persists runs into the result tables.
type GormSink struct {
	DB *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{DB: db}
}

func (s *GormSink) SaveRun(ctx context.Context, run *models.LeakageRun, outputs *models.RunOutputs) error {
	return models.SaveLeakageRun(ctx, s.DB, run, outputs)
}

func (s *GormSink) FindRunByRequestKey(ctx context.Context, requestKey string) (*models.LeakageRun, error) {
	return models.GetLeakageRunByRequestKey(ctx, s.DB, requestKey)
}

type LeakageRunRequest struct {
	Dataset string `json:"dataset"`
	// RequestKey makes a run request idempotent: a second request with the
	// same key returns the first run instead of recording another.
	RequestKey  string        `json:"request_key,omitempty"`
	RequestedBy string        `json:"requested_by,omitempty"`
	Options     RunOptions    `json:"-"`
	LockTTL     time.Duration `json:"-"`
}

type LeakageRunOutcome struct {
	Run *models.LeakageRun
	// Result is nil when the request key had already been recorded.
	Result    *RunResult
	Duplicate bool
}

// ProcessLeakageRun loads a snapshot, runs the pipeline and hands the result
// to sink. Runs of one dataset are serialised through a redis lock when redis
// is connected. Cache invalidation and the completion event are best effort.
// A nil sink runs without persisting.
func ProcessLeakageRun(ctx context.Context, logger *logrus.Logger, source models.RecordSource, sink ResultSink, req LeakageRunRequest) (*LeakageRunOutcome, error) {
	if source == nil {
		return nil, errors.New("record source is required")
	}
	dataset := strings.TrimSpace(req.Dataset)
	if dataset == "" {
		dataset, _ = utils.GetDatasetFromContext(ctx)
	}
	if dataset == "" {
		dataset = "default"
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy, _ = utils.GetRequestedByFromContext(ctx)
	}
	runId := uuid.NewString()
	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx = utils.SetDatasetInContext(ctx, dataset)

	if sink != nil && req.RequestKey != "" {
		existing, err := sink.FindRunByRequestKey(ctx, req.RequestKey)
		if err == nil {
			return &LeakageRunOutcome{Run: existing, Duplicate: true}, nil
		}
		if !errors.Is(err, utils.ErrorRecordNotFound) {
			config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Looking up request key", req.RequestKey, err)
			return nil, err
		}
	}

	lockTTL := req.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultRunLockTTL
	}
	release, err := utils.DatasetLock(ctx, dataset, lockTTL, "leakageRunWorkflow.go", "ProcessLeakageRun")
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	snapshot, err := source.LoadSnapshot(ctx)
	if err != nil {
		config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Loading snapshot", dataset, err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	result, err := RunLeakagePipeline(ctx, snapshot, req.Options)
	if err != nil {
		config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Running pipeline", dataset, err)
		return nil, err
	}

	run := NewLeakageRun(runId, dataset, correlationId, snapshot, result)
	run.RequestedBy = requestedBy
	if req.RequestKey != "" {
		run.RequestKey = &req.RequestKey
	}
	run.DurationMs = time.Since(started).Milliseconds()

	outcome := &LeakageRunOutcome{Run: run, Result: result}
	if sink != nil {
		if err := sink.SaveRun(ctx, run, result.Outputs()); err != nil {
			if errors.Is(err, models.ErrDuplicateRunRequest) {
				existing, findErr := sink.FindRunByRequestKey(ctx, req.RequestKey)
				if findErr != nil {
					return nil, findErr
				}
				return &LeakageRunOutcome{Run: existing, Duplicate: true}, nil
			}
			config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Saving run", runId, err)
			return nil, err
		}
		if err := reports.InvalidateDatasetReports(ctx, dataset); err != nil {
			config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Invalidating report cache", dataset, err)
		}
		if config.PublishRunEventsEnabled() {
			if _, err := config.PublishLeakageRunCompleted(ctx, NewLeakageRunMessage(run)); err != nil {
				config.LogError(logger, "leakageRunWorkflow.go", "ProcessLeakageRun", "Publishing run event", runId, err)
			}
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "LeakageRun",
			"run_id":         runId,
			"dataset":        dataset,
			"correlation_id": correlationId,
			"issues":         run.IssueCount,
			"high_risk":      run.HighRiskCount,
			"duration_ms":    run.DurationMs,
			"persisted":      sink != nil,
		}).Info("leakage run completed")
	}
	return outcome, nil
}

// NewLeakageRun builds the run header from a pipeline result.
func NewLeakageRun(runId string, dataset string, correlationId string, snapshot *models.Snapshot, result *RunResult) *models.LeakageRun {
	counts := snapshot.Counts()
	return &models.LeakageRun{
		ID:             runId,
		Dataset:        dataset,
		CorrelationId:  correlationId,
		AnalysisDate:   result.Summary.AnalysisDate,
		TotalExpected:  result.Summary.TotalExpected,
		TotalRealized:  result.Summary.TotalRealized,
		Diff:           result.Summary.Diff,
		LeakagePct:     result.Summary.LeakagePct,
		OrderCount:     counts.Orders,
		OrderItemCount: counts.OrderItems,
		ProductCount:   counts.Products,
		CustomerCount:  counts.Customers,
		IssueCount:     len(result.Issues),
		HighRiskCount:  result.HighRiskCount(),
	}
}

func NewLeakageRunMessage(run *models.LeakageRun) config.LeakageRunMessage {
	return config.LeakageRunMessage{
		RunId:         run.ID,
		Dataset:       run.Dataset,
		AnalysisDate:  run.AnalysisDate.Format("2006-01-02"),
		TotalExpected: run.TotalExpected.StringFixed(2),
		TotalRealized: run.TotalRealized.StringFixed(2),
		Diff:          run.Diff.StringFixed(2),
		LeakagePct:    utils.DecimalPtrString(run.LeakagePct),
		IssueCount:    run.IssueCount,
		HighRiskCount: run.HighRiskCount,
		CorrelationId: run.CorrelationId,
		CompletedAt:   time.Now().UTC(),
	}
}
