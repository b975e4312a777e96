package models

import (
	"github.com/shopspring/decimal"
)

// Product is one row of the raw product catalog. Margin is the stored value
// and is reconciled against Price - Cost, never trusted.
type Product struct {
	ProductId string          `gorm:"size:64;index;not null" json:"product_id" validate:"required"`
	Category  string          `gorm:"size:100;index" json:"category"`
	Name      string          `gorm:"size:255" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Cost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	Margin    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"margin"`
}

func (Product) TableName() string {
	return "products"
}
