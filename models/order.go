package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one row of the raw orders table. Raw rows are read-only for a run.
type Order struct {
	OrderId       string          `gorm:"size:64;index;not null" json:"order_id" validate:"required"`
	CustomerId    string          `gorm:"size:64;index;not null" json:"customer_id" validate:"required"`
	OrderTime     time.Time       `json:"order_time"`
	PaymentMethod string          `gorm:"size:50" json:"payment_method"`
	DiscountPct   decimal.Decimal `gorm:"type:decimal(9,4);default:0" json:"discount_pct"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Country       string          `gorm:"size:100;index" json:"country"`
	Device        string          `gorm:"size:50" json:"device"`
	Source        string          `gorm:"size:100;index" json:"source"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is one line of an order. (OrderId, ProductId) is not required to
// be unique.
type OrderItem struct {
	OrderId   string          `gorm:"size:64;index;not null" json:"order_id" validate:"required"`
	ProductId string          `gorm:"size:64;index;not null" json:"product_id" validate:"required"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Quantity  int             `gorm:"not null;default:0" json:"quantity"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// ItemKey renders the composite key used in issue reports.
func (i OrderItem) ItemKey() []string {
	return []string{i.OrderId, i.ProductId}
}
