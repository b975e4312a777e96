package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgSource reads the raw tables from a Postgres warehouse. Numeric columns
// are selected as text so no precision is lost on the way to decimal. A NULL
// in a required numeric column is a StructuralError; only optional text
// columns fall back to empty values.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	var snapshot Snapshot
	var err error

	if snapshot.Orders, err = s.loadOrders(ctx); err != nil {
		return nil, err
	}
	if snapshot.OrderItems, err = s.loadOrderItems(ctx); err != nil {
		return nil, err
	}
	if snapshot.Products, err = s.loadProducts(ctx); err != nil {
		return nil, err
	}
	if snapshot.Customers, err = s.loadCustomers(ctx); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *PgSource) loadOrders(ctx context.Context) ([]Order, error) {
	query := `
		SELECT order_id, customer_id, order_time, COALESCE(payment_method, ''),
			discount_pct::text, subtotal::text, total::text,
			COALESCE(country, ''), COALESCE(device, ''), COALESCE(source, '')
		FROM orders
		ORDER BY order_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var results []Order
	for rows.Next() {
		var o Order
		var orderTime *time.Time
		var discountPct, subtotal, total *string
		if err := rows.Scan(&o.OrderId, &o.CustomerId, &orderTime, &o.PaymentMethod,
			&discountPct, &subtotal, &total, &o.Country, &o.Device, &o.Source); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if orderTime != nil {
			o.OrderTime = *orderTime
		}
		row := len(results) + 1
		if o.DiscountPct, err = pgDecimal(EntityKindOrder, o.OrderId, row, "discount_pct", discountPct); err != nil {
			return nil, err
		}
		if o.Subtotal, err = pgDecimal(EntityKindOrder, o.OrderId, row, "subtotal", subtotal); err != nil {
			return nil, err
		}
		if o.Total, err = pgDecimal(EntityKindOrder, o.OrderId, row, "total", total); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

func (s *PgSource) loadOrderItems(ctx context.Context) ([]OrderItem, error) {
	query := `
		SELECT order_id, product_id, unit_price::text, quantity, line_total::text
		FROM order_items
		ORDER BY order_id, product_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var results []OrderItem
	for rows.Next() {
		var item OrderItem
		var unitPrice, lineTotal *string
		var quantity *int
		if err := rows.Scan(&item.OrderId, &item.ProductId, &unitPrice, &quantity, &lineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		key := item.OrderId + "/" + item.ProductId
		row := len(results) + 1
		if item.UnitPrice, err = pgDecimal(EntityKindOrderItem, key, row, "unit_price", unitPrice); err != nil {
			return nil, err
		}
		if item.Quantity, err = pgInt(EntityKindOrderItem, key, row, "quantity", quantity); err != nil {
			return nil, err
		}
		if item.LineTotal, err = pgDecimal(EntityKindOrderItem, key, row, "line_total", lineTotal); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (s *PgSource) loadProducts(ctx context.Context) ([]Product, error) {
	query := `
		SELECT product_id, COALESCE(category, ''), COALESCE(name, ''),
			price::text, cost::text, margin::text
		FROM products
		ORDER BY product_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var results []Product
	for rows.Next() {
		var p Product
		var price, cost, margin *string
		if err := rows.Scan(&p.ProductId, &p.Category, &p.Name, &price, &cost, &margin); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		row := len(results) + 1
		if p.Price, err = pgDecimal(EntityKindProduct, p.ProductId, row, "price", price); err != nil {
			return nil, err
		}
		if p.Cost, err = pgDecimal(EntityKindProduct, p.ProductId, row, "cost", cost); err != nil {
			return nil, err
		}
		if p.Margin, err = pgDecimal(EntityKindProduct, p.ProductId, row, "margin", margin); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *PgSource) loadCustomers(ctx context.Context) ([]Customer, error) {
	query := `
		SELECT customer_id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(country, ''),
			COALESCE(age, 0), signup_date, COALESCE(marketing_opt_in, false)
		FROM customers
		ORDER BY customer_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
		var c Customer
		var signup *time.Time
		err := row.Scan(&c.CustomerId, &c.Name, &c.Email, &c.Country, &c.Age, &signup, &c.MarketingOptIn)
		if signup != nil {
			c.SignupDate = *signup
		}
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan customers: %w", err)
	}
	return results, nil
}

var errNullValue = errors.New("required value is NULL")

func pgDecimal(entity EntityKind, key string, row int, field string, value *string) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, &StructuralError{Entity: entity, Key: key, Row: row, Field: field, Err: errNullValue}
	}
	d, err := decimal.NewFromString(*value)
	if err != nil {
		return decimal.Zero, &StructuralError{Entity: entity, Key: key, Row: row, Field: field, Err: err}
	}
	return d, nil
}

func pgInt(entity EntityKind, key string, row int, field string, value *int) (int, error) {
	if value == nil {
		return 0, &StructuralError{Entity: entity, Key: key, Row: row, Field: field, Err: errNullValue}
	}
	return *value, nil
}
