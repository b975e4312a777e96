package workflow

import (
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testRules = config.DefaultLeakageRules()

var analysisDate = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

// sampleSnapshot is a small dataset with one anomaly of every kind.
func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Orders: []models.Order{
			{OrderId: "O1", CustomerId: "C1", PaymentMethod: "card", DiscountPct: dec("10"), Subtotal: dec("100"), Total: dec("91"), Country: "US", Source: "Email"},
			{OrderId: "O2", CustomerId: "C2", DiscountPct: dec("0"), Subtotal: dec("50"), Total: dec("50"), Country: "US", Source: "Organic"},
			{OrderId: "O3", CustomerId: "C9", DiscountPct: dec("90"), Subtotal: dec("200"), Total: dec("20"), Country: "DE", Source: "Email"},
			{OrderId: "O3", CustomerId: "C3", DiscountPct: dec("120"), Subtotal: dec("0"), Total: dec("-5"), Country: "DE", Source: "Ads"},
		},
		OrderItems: []models.OrderItem{
			{OrderId: "O1", ProductId: "P1", UnitPrice: dec("10"), Quantity: 3, LineTotal: dec("30")},
			{OrderId: "O1", ProductId: "P2", UnitPrice: dec("20"), Quantity: 2, LineTotal: dec("35")},
			{OrderId: "O2", ProductId: "P404", UnitPrice: dec("5"), Quantity: 1, LineTotal: dec("5")},
			{OrderId: "O404", ProductId: "P1", UnitPrice: dec("10"), Quantity: 0, LineTotal: dec("0")},
		},
		Products: []models.Product{
			{ProductId: "P1", Category: "Toys", Name: "Robot", Price: dec("10"), Cost: dec("4"), Margin: dec("6")},
			{ProductId: "P2", Category: "Toys", Name: "Kite", Price: dec("50"), Cost: dec("60"), Margin: dec("-10")},
			{ProductId: "P2", Category: "Toys", Name: "Kite copy", Price: dec("50"), Cost: dec("40"), Margin: dec("12")},
		},
		Customers: []models.Customer{
			{CustomerId: "C1", Country: "US"},
			{CustomerId: "C2", Country: "US"},
			{CustomerId: "C3", Country: "DE"},
			{CustomerId: "C3", Country: "DE"},
		},
	}
}

func decFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
