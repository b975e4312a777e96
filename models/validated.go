package models

import (
	"github.com/shopspring/decimal"
)

// Validated records are the middle layer of a run: the raw record plus the
// recomputed expectation and its status. They are built once by the
// reconciliation stage and never revised.

type ValidatedOrderItem struct {
	OrderItem
	ExpectedLineTotal decimal.Decimal `json:"expected_line_total"`
	LineTotalDiff     decimal.Decimal `json:"line_total_diff"`
	PriceStatus       PriceStatus     `json:"price_status"`
}

type ValidatedOrder struct {
	Order
	ExpectedTotal  decimal.Decimal `json:"expected_total"`
	DiscountDiff   decimal.Decimal `json:"discount_diff"`
	DiscountStatus DiscountStatus  `json:"discount_status"`
}

// DiscountValue is subtotal * discount_pct / 100.
func (o ValidatedOrder) DiscountValue() decimal.Decimal {
	return o.Subtotal.Mul(o.DiscountPct).Div(decimal.NewFromInt(100))
}

type ValidatedProduct struct {
	Product
	ExpectedMargin decimal.Decimal `json:"expected_margin"`
	MarginDiff     decimal.Decimal `json:"margin_diff"`
	MarginStatus   MarginStatus    `json:"margin_status"`
}

type ValidatedCustomer struct {
	Customer
}

// Validated groups the four reconciled collections of one run.
type Validated struct {
	OrderItems []ValidatedOrderItem `json:"order_items"`
	Orders     []ValidatedOrder     `json:"orders"`
	Products   []ValidatedProduct   `json:"products"`
	Customers  []ValidatedCustomer  `json:"customers"`
}
