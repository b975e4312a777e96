package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/leakage_backend/models"
)

// NOTE: These tests are DB-free. The pipeline is a pure function of its
// snapshot, so everything here runs on in-memory collections.

func TestRunLeakagePipeline_IsDeterministic(t *testing.T) {
	opts := RunOptions{AnalysisDate: analysisDate}
	first, err := RunLeakagePipeline(context.Background(), sampleSnapshot(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := RunLeakagePipeline(context.Background(), sampleSnapshot(), opts)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = json.Marshal(res)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("run %d failed: %v", i, errs[i])
		}
		if string(results[i]) != string(want) {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestRunLeakagePipeline_OutputBundle(t *testing.T) {
	snapshot := sampleSnapshot()
	res, err := RunLeakagePipeline(context.Background(), snapshot, RunOptions{AnalysisDate: analysisDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Issues) != 9 {
		t.Fatalf("expected 9 issues, got %d", len(res.Issues))
	}
	if res.IssueCounts[models.IssueKindDuplicateKey] != 3 || res.IssueCounts[models.IssueKindOrphanItem] != 1 {
		t.Fatalf("unexpected issue counts %v", res.IssueCounts)
	}
	if len(res.IssueCounts) != len(models.AllIssueKinds) {
		t.Fatalf("expected a count for every issue kind, got %v", res.IssueCounts)
	}
	// flagged records are not dropped
	if len(res.Validated.OrderItems) != len(snapshot.OrderItems) || len(res.Validated.Orders) != len(snapshot.Orders) ||
		len(res.Validated.Products) != len(snapshot.Products) || len(res.Validated.Customers) != len(snapshot.Customers) {
		t.Fatalf("validated layer lost records")
	}
	if !res.Summary.Diff.Equal(dec("5")) {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
	total := dec("0")
	for _, p := range res.ProductLeakages {
		total = total.Add(p.Leakage)
	}
	if !total.Equal(res.Summary.Diff) {
		t.Fatalf("product leakage %s does not add up to diff %s", total, res.Summary.Diff)
	}
	if len(res.ChannelAbuses) != 3 || len(res.CustomerProfiles) != 4 || len(res.CustomerRankings) != 4 {
		t.Fatalf("unexpected aggregate sizes %d/%d/%d", len(res.ChannelAbuses), len(res.CustomerProfiles), len(res.CustomerRankings))
	}
	for _, o := range res.Validated.Orders {
		if (o.DiscountPct.LessThan(dec("0")) || o.DiscountPct.GreaterThan(dec("80"))) && o.DiscountStatus != models.DiscountStatusInvalid {
			t.Fatalf("order %s with discount %s should be InvalidDiscount", o.OrderId, o.DiscountPct)
		}
	}
}

func TestRunLeakagePipeline_StructuralFailure(t *testing.T) {
	snapshot := sampleSnapshot()
	snapshot.OrderItems[2].ProductId = ""

	_, err := RunLeakagePipeline(context.Background(), snapshot, RunOptions{AnalysisDate: analysisDate})
	var se *models.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if se.Entity != models.EntityKindOrderItem || se.Field != "ProductId" || se.Row != 3 {
		t.Fatalf("unexpected error context %+v", se)
	}
}

func TestRunLeakagePipeline_EmptySnapshot(t *testing.T) {
	res, err := RunLeakagePipeline(context.Background(), &models.Snapshot{}, RunOptions{AnalysisDate: analysisDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.LeakagePct != nil || len(res.Issues) != 0 || len(res.CustomerRankings) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunLeakagePipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunLeakagePipeline(ctx, sampleSnapshot(), RunOptions{AnalysisDate: analysisDate}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLeakagePipeline_CustomRules(t *testing.T) {
	rules := testRules
	rules.ValidDiscountMax = dec("100")
	res, err := RunLeakagePipeline(context.Background(), sampleSnapshot(), RunOptions{AnalysisDate: analysisDate, Rules: &rules})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// O3 at 90% matches its total and is no longer out of policy
	if res.Validated.Orders[2].DiscountStatus != models.DiscountStatusOk {
		t.Fatalf("expected Ok under relaxed cap, got %s", res.Validated.Orders[2].DiscountStatus)
	}
}
