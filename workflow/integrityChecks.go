package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
)

// Integrity checks never mutate the snapshot and never stop the run; every
// flagged record still reaches reconciliation.

// CheckIntegrity runs all checks and returns issues in entity order: orders,
// order items, products, customers.
func CheckIntegrity(snapshot *models.Snapshot, rules config.LeakageRules) []models.ValidationIssue {
	var issues []models.ValidationIssue
	issues = append(issues, CheckOrderIntegrity(snapshot.Orders, snapshot.Customers, rules)...)
	issues = append(issues, CheckOrderItemIntegrity(snapshot.OrderItems, snapshot.Orders, snapshot.Products)...)
	issues = append(issues, CheckProductIntegrity(snapshot.Products)...)
	issues = append(issues, CheckCustomerIntegrity(snapshot.Customers)...)
	return issues
}

func CheckOrderIntegrity(orders []models.Order, customers []models.Customer, rules config.LeakageRules) []models.ValidationIssue {
	issues := duplicateKeyIssues(models.EntityKindOrder, "order_id", len(orders), func(i int) string {
		return orders[i].OrderId
	})

	customerKeys := make(map[string]struct{}, len(customers))
	for _, c := range customers {
		customerKeys[c.CustomerId] = struct{}{}
	}
	for _, o := range orders {
		if _, ok := customerKeys[o.CustomerId]; !ok {
			issues = append(issues, newIssue(models.EntityKindOrder, models.IssueKindMissingCustomer,
				fmt.Sprintf("customer_id %s not found", o.CustomerId), o.OrderId))
		}
	}

	for _, o := range orders {
		var fields []string
		if !o.Subtotal.IsPositive() {
			fields = append(fields, "subtotal="+o.Subtotal.String())
		}
		if !o.Total.IsPositive() {
			fields = append(fields, "total="+o.Total.String())
		}
		if len(fields) > 0 {
			issues = append(issues, newIssue(models.EntityKindOrder, models.IssueKindNonPositiveTotal,
				strings.Join(fields, ", "), o.OrderId))
		}
	}

	for _, o := range orders {
		if outOfRange(o.DiscountPct, rules.RawDiscountMin, rules.RawDiscountMax) {
			issues = append(issues, newIssue(models.EntityKindOrder, models.IssueKindDiscountOutOfRange,
				fmt.Sprintf("discount_pct=%s outside [%s, %s]", o.DiscountPct, rules.RawDiscountMin, rules.RawDiscountMax), o.OrderId))
		}
	}
	return issues
}

// CheckOrderItemIntegrity resolves every item against the order and product
// key sets. (order_id, product_id) is not unique, so there is no duplicate
// check here.
func CheckOrderItemIntegrity(items []models.OrderItem, orders []models.Order, products []models.Product) []models.ValidationIssue {
	orderKeys := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		orderKeys[o.OrderId] = struct{}{}
	}
	productKeys := make(map[string]struct{}, len(products))
	for _, p := range products {
		productKeys[p.ProductId] = struct{}{}
	}

	var issues []models.ValidationIssue
	for _, item := range items {
		if _, ok := orderKeys[item.OrderId]; !ok {
			issues = append(issues, newIssue(models.EntityKindOrderItem, models.IssueKindOrphanItem,
				fmt.Sprintf("order_id %s not found", item.OrderId), item.ItemKey()...))
		}
	}
	for _, item := range items {
		if _, ok := productKeys[item.ProductId]; !ok {
			issues = append(issues, newIssue(models.EntityKindOrderItem, models.IssueKindUnknownProduct,
				fmt.Sprintf("product_id %s not found", item.ProductId), item.ItemKey()...))
		}
	}
	for _, item := range items {
		var fields []string
		if item.Quantity <= 0 {
			fields = append(fields, fmt.Sprintf("quantity=%d", item.Quantity))
		}
		if !item.UnitPrice.IsPositive() {
			fields = append(fields, "unit_price="+item.UnitPrice.String())
		}
		if !item.LineTotal.IsPositive() {
			fields = append(fields, "line_total="+item.LineTotal.String())
		}
		if len(fields) > 0 {
			issues = append(issues, newIssue(models.EntityKindOrderItem, models.IssueKindNonPositiveValue,
				strings.Join(fields, ", "), item.ItemKey()...))
		}
	}
	return issues
}

func CheckProductIntegrity(products []models.Product) []models.ValidationIssue {
	return duplicateKeyIssues(models.EntityKindProduct, "product_id", len(products), func(i int) string {
		return products[i].ProductId
	})
}

func CheckCustomerIntegrity(customers []models.Customer) []models.ValidationIssue {
	return duplicateKeyIssues(models.EntityKindCustomer, "customer_id", len(customers), func(i int) string {
		return customers[i].CustomerId
	})
}

// duplicateKeyIssues yields one issue per key seen more than once, sorted by key.
func duplicateKeyIssues(entity models.EntityKind, keyName string, n int, keyAt func(int) string) []models.ValidationIssue {
	counts := make(map[string]int, n)
	for i := 0; i < n; i++ {
		counts[keyAt(i)]++
	}
	var dups []string
	for key, count := range counts {
		if count > 1 {
			dups = append(dups, key)
		}
	}
	sort.Strings(dups)

	issues := make([]models.ValidationIssue, 0, len(dups))
	for _, key := range dups {
		issues = append(issues, newIssue(entity, models.IssueKindDuplicateKey,
			fmt.Sprintf("%s %s appears %d times", keyName, key, counts[key]), key))
	}
	return issues
}

func newIssue(entity models.EntityKind, kind models.IssueKind, detail string, keys ...string) models.ValidationIssue {
	return models.ValidationIssue{
		EntityKind: entity,
		Keys:       keys,
		IssueKind:  kind,
		Detail:     detail,
	}
}

func outOfRange(v, lo, hi decimal.Decimal) bool {
	return v.LessThan(lo) || v.GreaterThan(hi)
}
