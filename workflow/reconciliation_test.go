package workflow

import (
	"testing"

	"github.com/mmdatafocus/leakage_backend/models"
)

func TestReconcileOrderItem(t *testing.T) {
	cases := []struct {
		name      string
		unitPrice string
		quantity  int
		lineTotal string
		expected  string
		status    models.PriceStatus
	}{
		{"exact", "10", 3, "30", "30", models.PriceStatusOk},
		{"within tolerance", "3.333", 3, "10", "9.999", models.PriceStatusOk},
		{"at tolerance", "10", 1, "10.01", "10", models.PriceStatusOk},
		{"over tolerance", "10", 1, "10.02", "10", models.PriceStatusMismatch},
		{"undercharged", "20", 2, "35", "40", models.PriceStatusMismatch},
		{"zero quantity", "10", 0, "0", "0", models.PriceStatusOk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := models.OrderItem{OrderId: "O", ProductId: "P", UnitPrice: dec(tc.unitPrice), Quantity: tc.quantity, LineTotal: dec(tc.lineTotal)}
			v := ReconcileOrderItem(item, testRules)
			if !v.ExpectedLineTotal.Equal(dec(tc.expected)) {
				t.Fatalf("expected line total %s, got %s", tc.expected, v.ExpectedLineTotal)
			}
			if !v.LineTotalDiff.Equal(dec(tc.expected).Sub(dec(tc.lineTotal))) {
				t.Fatalf("unexpected diff %s", v.LineTotalDiff)
			}
			if v.PriceStatus != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, v.PriceStatus)
			}
		})
	}
}

func TestReconcileOrder(t *testing.T) {
	cases := []struct {
		name        string
		discountPct string
		subtotal    string
		total       string
		expected    string
		diff        string
		status      models.DiscountStatus
	}{
		{"mismatch", "10", "100", "91", "90", "-1", models.DiscountStatusMismatch},
		{"ok", "10", "100", "90", "90", "0", models.DiscountStatusOk},
		{"no discount", "0", "50", "50.005", "50", "-0.005", models.DiscountStatusOk},
		{"cap is inclusive", "80", "100", "20", "20", "0", models.DiscountStatusOk},
		{"above cap with matching total", "90", "200", "20", "20", "0", models.DiscountStatusInvalid},
		{"above cap and mismatch", "85", "100", "50", "15", "-35", models.DiscountStatusInvalid},
		{"negative discount", "-5", "100", "105", "105", "0", models.DiscountStatusInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := models.Order{OrderId: "O1", CustomerId: "C1", DiscountPct: dec(tc.discountPct), Subtotal: dec(tc.subtotal), Total: dec(tc.total)}
			v := ReconcileOrder(o, testRules)
			if !v.ExpectedTotal.Equal(dec(tc.expected)) {
				t.Fatalf("expected total %s, got %s", tc.expected, v.ExpectedTotal)
			}
			if !v.DiscountDiff.Equal(dec(tc.diff)) {
				t.Fatalf("expected diff %s, got %s", tc.diff, v.DiscountDiff)
			}
			if v.DiscountStatus != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, v.DiscountStatus)
			}
		})
	}
}

func TestReconcileProduct(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		cost     string
		margin   string
		expected string
		status   models.MarginStatus
	}{
		{"negative margin wins over mismatch", "50", "60", "5", "-10", models.MarginStatusNegative},
		{"negative margin stored correctly", "50", "60", "-10", "-10", models.MarginStatusNegative},
		{"mismatch", "50", "40", "12", "10", models.MarginStatusMismatch},
		{"ok", "50", "40", "10.005", "10", models.MarginStatusOk},
		{"break even", "40", "40", "0", "0", models.MarginStatusOk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := models.Product{ProductId: "P1", Price: dec(tc.price), Cost: dec(tc.cost), Margin: dec(tc.margin)}
			v := ReconcileProduct(p, testRules)
			if !v.ExpectedMargin.Equal(dec(tc.expected)) {
				t.Fatalf("expected margin %s, got %s", tc.expected, v.ExpectedMargin)
			}
			if v.MarginStatus != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, v.MarginStatus)
			}
		})
	}
}

func TestReconcileOrderItems_PriceStatusMatchesTolerance(t *testing.T) {
	items := sampleSnapshot().OrderItems
	for _, v := range ReconcileOrderItems(items, testRules) {
		within := v.UnitPrice.Mul(decFromInt(v.Quantity)).Sub(v.LineTotal).Abs().LessThanOrEqual(dec("0.01"))
		if within != (v.PriceStatus == models.PriceStatusOk) {
			t.Fatalf("item %v: status %s disagrees with tolerance check", v.ItemKey(), v.PriceStatus)
		}
	}
}

func TestReconcileCustomers_Passthrough(t *testing.T) {
	customers := sampleSnapshot().Customers
	validated := ReconcileCustomers(customers)
	if len(validated) != len(customers) {
		t.Fatalf("expected %d customers, got %d", len(customers), len(validated))
	}
	for i := range customers {
		if validated[i].Customer != customers[i] {
			t.Fatalf("customer %d changed: %+v", i, validated[i])
		}
	}
}
