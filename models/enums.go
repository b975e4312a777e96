package models

type EntityKind string

const (
	EntityKindOrder     EntityKind = "Order"
	EntityKindOrderItem EntityKind = "OrderItem"
	EntityKindProduct   EntityKind = "Product"
	EntityKindCustomer  EntityKind = "Customer"
)

type IssueKind string

const (
	IssueKindDuplicateKey       IssueKind = "DuplicateKey"
	IssueKindMissingCustomer    IssueKind = "MissingCustomer"
	IssueKindOrphanItem         IssueKind = "OrphanItem"
	IssueKindUnknownProduct     IssueKind = "UnknownProduct"
	IssueKindNonPositiveValue   IssueKind = "NonPositiveValue"
	IssueKindNonPositiveTotal   IssueKind = "NonPositiveTotal"
	IssueKindDiscountOutOfRange IssueKind = "DiscountOutOfRange"
)

// AllIssueKinds lists issue kinds in report order.
var AllIssueKinds = []IssueKind{
	IssueKindDuplicateKey,
	IssueKindMissingCustomer,
	IssueKindOrphanItem,
	IssueKindUnknownProduct,
	IssueKindNonPositiveValue,
	IssueKindNonPositiveTotal,
	IssueKindDiscountOutOfRange,
}

type PriceStatus string

const (
	PriceStatusOk       PriceStatus = "Ok"
	PriceStatusMismatch PriceStatus = "PriceMismatch"
)

type DiscountStatus string

const (
	DiscountStatusOk       DiscountStatus = "Ok"
	DiscountStatusInvalid  DiscountStatus = "InvalidDiscount"
	DiscountStatusMismatch DiscountStatus = "DiscountMismatch"
)

type MarginStatus string

const (
	MarginStatusOk       MarginStatus = "Ok"
	MarginStatusNegative MarginStatus = "NegativeMargin"
	MarginStatusMismatch MarginStatus = "MarginMismatch"
)

// RiskCategory is shared by the absolute customer profile and the
// country-relative ranking tier.
type RiskCategory string

const (
	RiskCategoryHigh   RiskCategory = "High"
	RiskCategoryMedium RiskCategory = "Medium"
	RiskCategoryLow    RiskCategory = "Low"
)

func (r RiskCategory) IsValid() bool {
	switch r {
	case RiskCategoryHigh, RiskCategoryMedium, RiskCategoryLow:
		return true
	}
	return false
}

type AbuseFlag string

const (
	AbuseFlagYes AbuseFlag = "Yes"
	AbuseFlagNo  AbuseFlag = "No"
)
