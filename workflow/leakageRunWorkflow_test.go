package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/utils"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type fakeSource struct {
	snapshot *models.Snapshot
	err      error
}

func (s *fakeSource) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	return s.snapshot, s.err
}

// fakeSink models the unique request_key index of leakage_runs.
type fakeSink struct {
	mu    sync.Mutex
	runs  map[string]*models.LeakageRun
	byKey map[string]*models.LeakageRun
	saved map[string]*models.RunOutputs
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		runs:  map[string]*models.LeakageRun{},
		byKey: map[string]*models.LeakageRun{},
		saved: map[string]*models.RunOutputs{},
	}
}

func (s *fakeSink) SaveRun(ctx context.Context, run *models.LeakageRun, outputs *models.RunOutputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.RequestKey != nil {
		if _, exists := s.byKey[*run.RequestKey]; exists {
			return models.ErrDuplicateRunRequest
		}
		s.byKey[*run.RequestKey] = run
	}
	s.runs[run.ID] = run
	s.saved[run.ID] = outputs
	return nil
}

func (s *fakeSink) FindRunByRequestKey(ctx context.Context, requestKey string) (*models.LeakageRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.byKey[requestKey]; ok {
		return run, nil
	}
	return nil, utils.ErrorRecordNotFound
}

func TestProcessLeakageRun_PersistsRun(t *testing.T) {
	sink := newFakeSink()
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")
	outcome, err := ProcessLeakageRun(ctx, nil, &fakeSource{snapshot: sampleSnapshot()}, sink, LeakageRunRequest{
		Dataset:     "shop",
		RequestedBy: "tester",
		Options:     RunOptions{AnalysisDate: analysisDate},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run := outcome.Run
	if outcome.Duplicate || run.ID == "" || run.Dataset != "shop" || run.CorrelationId != "cid-1" || run.RequestedBy != "tester" {
		t.Fatalf("unexpected run %+v", run)
	}
	if run.OrderCount != 4 || run.OrderItemCount != 4 || run.ProductCount != 3 || run.CustomerCount != 4 || run.IssueCount != 9 {
		t.Fatalf("unexpected run counts %+v", run)
	}
	if !run.Diff.Equal(dec("5")) || !run.AnalysisDate.Equal(analysisDate) {
		t.Fatalf("unexpected run summary %+v", run.Summary())
	}
	saved := sink.saved[run.ID]
	if saved == nil || len(saved.Issues) != 9 || len(saved.ProductLeakages) != 3 || len(saved.CustomerRankings) != 4 {
		t.Fatalf("outputs not handed to sink: %+v", saved)
	}
}

func TestProcessLeakageRun_RequestKeyIsIdempotent(t *testing.T) {
	sink := newFakeSink()
	source := &fakeSource{snapshot: sampleSnapshot()}
	req := LeakageRunRequest{Dataset: "shop", RequestKey: "msg-123", Options: RunOptions{AnalysisDate: analysisDate}}

	var wg sync.WaitGroup
	outcomes := make([]*LeakageRunOutcome, 10)
	errs := make([]error, 10)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = ProcessLeakageRun(context.Background(), nil, source, sink, req)
		}(i)
	}
	wg.Wait()

	if len(sink.runs) != 1 {
		t.Fatalf("expected exactly 1 persisted run, got %d", len(sink.runs))
	}
	var firstId string
	for id := range sink.runs {
		firstId = id
	}
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if outcomes[i].Run.ID != firstId {
			t.Fatalf("request %d returned run %s, expected %s", i, outcomes[i].Run.ID, firstId)
		}
	}
}

func TestProcessLeakageRun_WithoutSink(t *testing.T) {
	outcome, err := ProcessLeakageRun(context.Background(), nil, &fakeSource{snapshot: sampleSnapshot()}, nil, LeakageRunRequest{
		Options: RunOptions{AnalysisDate: analysisDate},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Result == nil || outcome.Run.Dataset != "default" || outcome.Run.CorrelationId == "" {
		t.Fatalf("unexpected outcome %+v", outcome.Run)
	}
}

func TestProcessLeakageRun_DatasetAndRequesterFromContext(t *testing.T) {
	ctx := utils.SetDatasetInContext(context.Background(), "ctx-shop")
	ctx = utils.SetRequestedByInContext(ctx, "ops")
	source := &fakeSource{snapshot: sampleSnapshot()}

	outcome, err := ProcessLeakageRun(ctx, nil, source, nil, LeakageRunRequest{Options: RunOptions{AnalysisDate: analysisDate}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Run.Dataset != "ctx-shop" || outcome.Run.RequestedBy != "ops" {
		t.Fatalf("expected context values, got dataset=%q requested_by=%q", outcome.Run.Dataset, outcome.Run.RequestedBy)
	}

	outcome, err = ProcessLeakageRun(ctx, nil, source, nil, LeakageRunRequest{
		Dataset:     "shop",
		RequestedBy: "tester",
		Options:     RunOptions{AnalysisDate: analysisDate},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Run.Dataset != "shop" || outcome.Run.RequestedBy != "tester" {
		t.Fatalf("request values must win, got dataset=%q requested_by=%q", outcome.Run.Dataset, outcome.Run.RequestedBy)
	}
}

func TestGormSink_FindRunByRequestKeyUsesSinkHandle(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pw@tcp(127.0.0.1:3306)/leakage?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	var queries []string
	if err := db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		queries = append(queries, tx.Statement.SQL.String())
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := NewGormSink(db).FindRunByRequestKey(context.Background(), "k-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 1 || !strings.Contains(queries[0], "leakage_runs") || !strings.Contains(queries[0], "request_key") {
		t.Fatalf("expected one request_key lookup on the sink handle, got %v", queries)
	}

	if _, err := NewGormSink(nil).FindRunByRequestKey(context.Background(), "k-1"); err == nil {
		t.Fatalf("expected an error for a sink without a database")
	}
}

func TestProcessLeakageRun_SourceFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := ProcessLeakageRun(context.Background(), nil, &fakeSource{err: boom}, newFakeSink(), LeakageRunRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestNewLeakageRunMessage(t *testing.T) {
	res, err := RunLeakagePipeline(context.Background(), sampleSnapshot(), RunOptions{AnalysisDate: analysisDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run := NewLeakageRun("run-1", "shop", "cid", sampleSnapshot(), res)
	msg := NewLeakageRunMessage(run)
	if msg.RunId != "run-1" || msg.AnalysisDate != "2024-06-30" || msg.Diff != "5.00" || msg.LeakagePct == nil || *msg.LeakagePct != "7.14" {
		t.Fatalf("unexpected message %+v", msg)
	}
}
