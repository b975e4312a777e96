package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateSnapshot_FirstFailureInEntityOrder(t *testing.T) {
	s := &Snapshot{
		Orders: []Order{{OrderId: "O1", CustomerId: "C1"}},
		OrderItems: []OrderItem{
			{OrderId: "O1", ProductId: "P1"},
			{OrderId: "O1", ProductId: ""},
		},
		Customers: []Customer{{CustomerId: ""}},
	}
	err := ValidateSnapshot(s)
	var structuralErr *StructuralError
	if !errors.As(err, &structuralErr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if structuralErr.Entity != EntityKindOrderItem || structuralErr.Row != 2 || structuralErr.Field != "ProductId" {
		t.Fatalf("unexpected failure location: %+v", structuralErr)
	}
	if structuralErr.Key != "O1/" {
		t.Fatalf("expected key O1/, got %q", structuralErr.Key)
	}
}

func TestValidateSnapshot_AcceptsDataQualityProblems(t *testing.T) {
	// negative totals and unknown references are findings, not structural failures
	s := &Snapshot{
		Orders:     []Order{{OrderId: "O1", CustomerId: "C404", Total: decimal.NewFromInt(-5)}},
		OrderItems: []OrderItem{{OrderId: "O404", ProductId: "P404", Quantity: -1}},
	}
	if err := ValidateSnapshot(s); err != nil {
		t.Fatalf("expected no structural error, got %v", err)
	}
	if err := ValidateSnapshot(&Snapshot{}); err != nil {
		t.Fatalf("empty snapshot must validate: %v", err)
	}
	if err := ValidateSnapshot(nil); err == nil {
		t.Fatalf("expected an error for a nil snapshot")
	}
}

func TestStructuralError_Message(t *testing.T) {
	err := &StructuralError{Entity: EntityKindOrder, Key: "O2", Row: 2, Field: "discount_pct", Err: errors.New("bad value")}
	want := "Order O2 (row 2): field discount_pct: bad value"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected the cause to unwrap")
	}
}

func TestCountIssuesByKind(t *testing.T) {
	counts := CountIssuesByKind([]ValidationIssue{
		{IssueKind: IssueKindUnknownProduct},
		{IssueKind: IssueKindUnknownProduct},
	})
	if len(counts) != len(AllIssueKinds) {
		t.Fatalf("expected every kind present, got %v", counts)
	}
	if counts[IssueKindUnknownProduct] != 2 || counts[IssueKindDuplicateKey] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestSnapshotCounts(t *testing.T) {
	var nilSnapshot *Snapshot
	if nilSnapshot.Counts() != (SnapshotCounts{}) {
		t.Fatalf("nil snapshot must count zero")
	}
	s := &Snapshot{Orders: make([]Order, 2), Products: make([]Product, 3)}
	if got := s.Counts(); got.Orders != 2 || got.Products != 3 || got.OrderItems != 0 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}
