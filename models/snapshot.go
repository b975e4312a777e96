package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/leakage_backend/utils"
)

// Snapshot is the fixed input of one leakage run: the four raw collections as
// ingested. Nothing downstream mutates it.
type Snapshot struct {
	Orders     []Order     `json:"orders"`
	OrderItems []OrderItem `json:"order_items"`
	Products   []Product   `json:"products"`
	Customers  []Customer  `json:"customers"`
}

// RecordSource supplies the raw collections for a run (MySQL, Postgres, CSV).
type RecordSource interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

type SnapshotCounts struct {
	Orders     int `json:"orders"`
	OrderItems int `json:"order_items"`
	Products   int `json:"products"`
	Customers  int `json:"customers"`
}

func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Orders:     len(s.Orders),
		OrderItems: len(s.OrderItems),
		Products:   len(s.Products),
		Customers:  len(s.Customers),
	}
}

// StructuralError is raised at the input boundary when a record cannot be
// used at all (missing key, unparseable required field). Data-quality
// findings are never StructuralErrors.
type StructuralError struct {
	Entity EntityKind
	Key    string
	Row    int // 1-based data row when known, 0 otherwise
	Field  string
	Err    error
}

func (e *StructuralError) Error() string {
	loc := string(e.Entity)
	if e.Key != "" {
		loc += " " + e.Key
	}
	if e.Row > 0 {
		loc += fmt.Sprintf(" (row %d)", e.Row)
	}
	return fmt.Sprintf("%s: field %s: %v", loc, e.Field, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ValidateSnapshot checks the `validate` tags of every record and returns the
// first structural failure in entity order (orders, items, products, customers).
func ValidateSnapshot(s *Snapshot) error {
	if s == nil {
		return errors.New("snapshot is nil")
	}
	for i := range s.Orders {
		if err := structural(EntityKindOrder, s.Orders[i].OrderId, i+1, s.Orders[i]); err != nil {
			return err
		}
	}
	for i := range s.OrderItems {
		key := s.OrderItems[i].OrderId + "/" + s.OrderItems[i].ProductId
		if err := structural(EntityKindOrderItem, key, i+1, s.OrderItems[i]); err != nil {
			return err
		}
	}
	for i := range s.Products {
		if err := structural(EntityKindProduct, s.Products[i].ProductId, i+1, s.Products[i]); err != nil {
			return err
		}
	}
	for i := range s.Customers {
		if err := structural(EntityKindCustomer, s.Customers[i].CustomerId, i+1, s.Customers[i]); err != nil {
			return err
		}
	}
	return nil
}

func structural(entity EntityKind, key string, row int, record any) error {
	err := utils.ValidateStruct(record)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return &StructuralError{
			Entity: entity,
			Key:    key,
			Row:    row,
			Field:  fe.Field(),
			Err:    fmt.Errorf("failed %q check", fe.Tag()),
		}
	}
	return &StructuralError{Entity: entity, Key: key, Row: row, Err: err}
}
