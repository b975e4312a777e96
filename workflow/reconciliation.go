package workflow

import (
	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// exceeds reports |diff| > tolerance.
func exceeds(diff, tolerance decimal.Decimal) bool {
	return diff.Abs().GreaterThan(tolerance)
}

// ReconcileOrderItem recomputes unit_price * quantity against the stored line total.
func ReconcileOrderItem(item models.OrderItem, rules config.LeakageRules) models.ValidatedOrderItem {
	expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	diff := expected.Sub(item.LineTotal)

	status := models.PriceStatusOk
	if exceeds(diff, rules.MoneyTolerance) {
		status = models.PriceStatusMismatch
	}
	return models.ValidatedOrderItem{
		OrderItem:         item,
		ExpectedLineTotal: expected,
		LineTotalDiff:     diff,
		PriceStatus:       status,
	}
}

// ReconcileOrder recomputes subtotal * (1 - discount_pct/100). An out-of-policy
// discount is reported as InvalidDiscount even when the total matches.
func ReconcileOrder(order models.Order, rules config.LeakageRules) models.ValidatedOrder {
	factor := decimal.NewFromInt(1).Sub(order.DiscountPct.Div(hundred))
	expected := order.Subtotal.Mul(factor)
	diff := expected.Sub(order.Total)

	status := models.DiscountStatusOk
	switch {
	case outOfRange(order.DiscountPct, rules.ValidDiscountMin, rules.ValidDiscountMax):
		status = models.DiscountStatusInvalid
	case exceeds(diff, rules.MoneyTolerance):
		status = models.DiscountStatusMismatch
	}
	return models.ValidatedOrder{
		Order:          order,
		ExpectedTotal:  expected,
		DiscountDiff:   diff,
		DiscountStatus: status,
	}
}

// ReconcileProduct recomputes price - cost against the stored margin. A loss
// making product is NegativeMargin regardless of the stored value.
func ReconcileProduct(product models.Product, rules config.LeakageRules) models.ValidatedProduct {
	expected := product.Price.Sub(product.Cost)
	diff := expected.Sub(product.Margin)

	status := models.MarginStatusOk
	switch {
	case product.Cost.GreaterThan(product.Price):
		status = models.MarginStatusNegative
	case exceeds(diff, rules.MoneyTolerance):
		status = models.MarginStatusMismatch
	}
	return models.ValidatedProduct{
		Product:        product,
		ExpectedMargin: expected,
		MarginDiff:     diff,
		MarginStatus:   status,
	}
}

func ReconcileOrderItems(items []models.OrderItem, rules config.LeakageRules) []models.ValidatedOrderItem {
	results := make([]models.ValidatedOrderItem, len(items))
	for i := range items {
		results[i] = ReconcileOrderItem(items[i], rules)
	}
	return results
}

func ReconcileOrders(orders []models.Order, rules config.LeakageRules) []models.ValidatedOrder {
	results := make([]models.ValidatedOrder, len(orders))
	for i := range orders {
		results[i] = ReconcileOrder(orders[i], rules)
	}
	return results
}

func ReconcileProducts(products []models.Product, rules config.LeakageRules) []models.ValidatedProduct {
	results := make([]models.ValidatedProduct, len(products))
	for i := range products {
		results[i] = ReconcileProduct(products[i], rules)
	}
	return results
}

// ReconcileCustomers is a passthrough; customers carry no numeric expectation.
func ReconcileCustomers(customers []models.Customer) []models.ValidatedCustomer {
	results := make([]models.ValidatedCustomer, len(customers))
	for i := range customers {
		results[i] = models.ValidatedCustomer{Customer: customers[i]}
	}
	return results
}
