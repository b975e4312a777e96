package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	OrdersFile     = "orders.csv"
	OrderItemsFile = "order_items.csv"
	ProductsFile   = "products.csv"
	CustomersFile  = "customers.csv"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// CSVSource loads the four raw tables from a directory of CSV exports.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

func (s *CSVSource) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var snapshot models.Snapshot

	orders, err := s.readTable(ctx, OrdersFile)
	if err != nil {
		return nil, err
	}
	if snapshot.Orders, err = ParseOrders(orders); err != nil {
		return nil, err
	}

	items, err := s.readTable(ctx, OrderItemsFile)
	if err != nil {
		return nil, err
	}
	if snapshot.OrderItems, err = ParseOrderItems(items); err != nil {
		return nil, err
	}

	products, err := s.readTable(ctx, ProductsFile)
	if err != nil {
		return nil, err
	}
	if snapshot.Products, err = ParseProducts(products); err != nil {
		return nil, err
	}

	customers, err := s.readTable(ctx, CustomersFile)
	if err != nil {
		return nil, err
	}
	if snapshot.Customers, err = ParseCustomers(customers); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *CSVSource) readTable(ctx context.Context, name string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	table, err := ReadTable(name, f)
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger()
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"file":     name,
			"encoding": table.Encoding,
			"rows":     len(table.Rows),
			"warnings": len(table.Warnings),
		}).Info("csv table loaded")
		for _, w := range table.Warnings {
			logger.WithField("file", name).Warn(w)
		}
	}
	return table, nil
}

// rowParser collects the first structural failure of a row so the per-field
// parsing stays flat.
type rowParser struct {
	table  *Table
	entity models.EntityKind
	key    string
	row    int
	values []string
	err    error
}

func (p *rowParser) fail(field string, err error) {
	if p.err == nil {
		p.err = &models.StructuralError{Entity: p.entity, Key: p.key, Row: p.row, Field: field, Err: err}
	}
}

func (p *rowParser) str(field string) string {
	return p.table.Value(p.values, field)
}

func (p *rowParser) amount(field string) decimal.Decimal {
	d, err := ParseAmount(p.str(field))
	if err != nil {
		p.fail(field, err)
	}
	return d
}

func (p *rowParser) integer(field string, required bool) int {
	v := p.str(field)
	if v == "" && !required {
		return 0
	}
	d, err := ParseAmount(v)
	if err != nil {
		p.fail(field, err)
		return 0
	}
	if !d.IsInteger() {
		p.fail(field, fmt.Errorf("not an integer: %q", v))
		return 0
	}
	return int(d.IntPart())
}

func (p *rowParser) timestamp(field string) time.Time {
	v := p.str(field)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	p.fail(field, fmt.Errorf("unrecognised time %q", v))
	return time.Time{}
}

func (p *rowParser) boolean(field string) bool {
	v := strings.ToLower(p.str(field))
	switch v {
	case "":
		return false
	case "yes", "y":
		return true
	case "no", "n":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(field, fmt.Errorf("not a boolean: %q", v))
	}
	return b
}

func requireColumns(t *Table, entity models.EntityKind, names ...string) error {
	for _, name := range names {
		if t.Column(name) < 0 {
			return &models.StructuralError{Entity: entity, Field: name, Err: fmt.Errorf("missing column in %s", t.Name)}
		}
	}
	return nil
}

func ParseOrders(t *Table) ([]models.Order, error) {
	if err := requireColumns(t, models.EntityKindOrder, "order_id", "customer_id", "discount_pct", "subtotal", "total"); err != nil {
		return nil, err
	}
	results := make([]models.Order, 0, len(t.Rows))
	for i, values := range t.Rows {
		p := &rowParser{table: t, entity: models.EntityKindOrder, row: i + 1, values: values}
		p.key = p.str("order_id")
		o := models.Order{
			OrderId:       p.key,
			CustomerId:    p.str("customer_id"),
			OrderTime:     p.timestamp("order_time"),
			PaymentMethod: p.str("payment_method"),
			DiscountPct:   p.amount("discount_pct"),
			Subtotal:      p.amount("subtotal"),
			Total:         p.amount("total"),
			Country:       p.str("country"),
			Device:        p.str("device"),
			Source:        p.str("source"),
		}
		if p.err != nil {
			return nil, p.err
		}
		results = append(results, o)
	}
	return results, nil
}

func ParseOrderItems(t *Table) ([]models.OrderItem, error) {
	if err := requireColumns(t, models.EntityKindOrderItem, "order_id", "product_id", "unit_price", "quantity", "line_total"); err != nil {
		return nil, err
	}
	results := make([]models.OrderItem, 0, len(t.Rows))
	for i, values := range t.Rows {
		p := &rowParser{table: t, entity: models.EntityKindOrderItem, row: i + 1, values: values}
		p.key = p.str("order_id") + "/" + p.str("product_id")
		item := models.OrderItem{
			OrderId:   p.str("order_id"),
			ProductId: p.str("product_id"),
			UnitPrice: p.amount("unit_price"),
			Quantity:  p.integer("quantity", true),
			LineTotal: p.amount("line_total"),
		}
		if p.err != nil {
			return nil, p.err
		}
		results = append(results, item)
	}
	return results, nil
}

func ParseProducts(t *Table) ([]models.Product, error) {
	if err := requireColumns(t, models.EntityKindProduct, "product_id", "price", "cost", "margin"); err != nil {
		return nil, err
	}
	results := make([]models.Product, 0, len(t.Rows))
	for i, values := range t.Rows {
		p := &rowParser{table: t, entity: models.EntityKindProduct, row: i + 1, values: values}
		p.key = p.str("product_id")
		product := models.Product{
			ProductId: p.key,
			Category:  p.str("category"),
			Name:      p.str("name"),
			Price:     p.amount("price"),
			Cost:      p.amount("cost"),
			Margin:    p.amount("margin"),
		}
		if p.err != nil {
			return nil, p.err
		}
		results = append(results, product)
	}
	return results, nil
}

func ParseCustomers(t *Table) ([]models.Customer, error) {
	if err := requireColumns(t, models.EntityKindCustomer, "customer_id"); err != nil {
		return nil, err
	}
	results := make([]models.Customer, 0, len(t.Rows))
	for i, values := range t.Rows {
		p := &rowParser{table: t, entity: models.EntityKindCustomer, row: i + 1, values: values}
		p.key = p.str("customer_id")
		c := models.Customer{
			CustomerId:     p.key,
			Name:           p.str("name"),
			Email:          p.str("email"),
			Country:        p.str("country"),
			Age:            p.integer("age", false),
			SignupDate:     p.timestamp("signup_date"),
			MarketingOptIn: p.boolean("marketing_opt_in"),
		}
		if p.err != nil {
			return nil, p.err
		}
		results = append(results, c)
	}
	return results, nil
}
