package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeakageSummary is the company-wide row of a run. LeakagePct is nil when
// nothing was realized.
type LeakageSummary struct {
	AnalysisDate  time.Time        `json:"analysis_date"`
	TotalExpected decimal.Decimal  `json:"total_expected"`
	TotalRealized decimal.Decimal  `json:"total_realized"`
	Diff          decimal.Decimal  `json:"diff"`
	LeakagePct    *decimal.Decimal `json:"leakage_pct"`
}

type ProductLeakage struct {
	ID              int              `gorm:"primary_key" json:"-"`
	RunId           string           `gorm:"size:64;index;not null" json:"run_id,omitempty"`
	ProductId       string           `gorm:"size:64;not null" json:"product_id"`
	ProductName     string           `gorm:"size:255" json:"product_name"`
	Category        string           `gorm:"size:100" json:"category"`
	UnitsSold       int              `json:"units_sold"`
	ExpectedRevenue decimal.Decimal  `gorm:"type:decimal(38,16)" json:"expected_revenue"`
	RealizedRevenue decimal.Decimal  `gorm:"type:decimal(38,16)" json:"realized_revenue"`
	Leakage         decimal.Decimal  `gorm:"type:decimal(38,16)" json:"leakage"`
	LeakagePct      *decimal.Decimal `gorm:"type:decimal(38,16)" json:"leakage_pct"`
}

func (ProductLeakage) TableName() string {
	return "product_leakages"
}

type ChannelDiscountAbuse struct {
	ID                 int             `gorm:"primary_key" json:"-"`
	RunId              string          `gorm:"size:64;index;not null" json:"run_id,omitempty"`
	Source             string          `gorm:"size:100;not null" json:"source"`
	Orders             int             `json:"orders"`
	AvgDiscountPct     decimal.Decimal `gorm:"type:decimal(38,16)" json:"avg_discount_pct"`
	TotalDiscountValue decimal.Decimal `gorm:"type:decimal(38,16)" json:"total_discount_value"`
	DiscountLeakage    decimal.Decimal `gorm:"type:decimal(38,16)" json:"discount_leakage"`
	AbuseFlag          AbuseFlag       `gorm:"size:3;not null" json:"abuse_flag"`
}

func (ChannelDiscountAbuse) TableName() string {
	return "channel_discount_abuses"
}

type CustomerRiskProfile struct {
	ID                  int              `gorm:"primary_key" json:"-"`
	RunId               string           `gorm:"size:64;index;not null" json:"run_id,omitempty"`
	CustomerId          string           `gorm:"size:64;not null" json:"customer_id"`
	Country             string           `gorm:"size:100" json:"country"`
	TotalOrders         int              `json:"total_orders"`
	TotalRevenue        decimal.Decimal  `gorm:"type:decimal(38,16)" json:"total_revenue"`
	TotalDiscount       decimal.Decimal  `gorm:"type:decimal(38,16)" json:"total_discount"`
	DiscountIssues      int              `json:"discount_issues"`
	TotalLeakage        decimal.Decimal  `gorm:"type:decimal(38,16)" json:"total_leakage"`
	LeakagePctOfRevenue *decimal.Decimal `gorm:"type:decimal(38,16)" json:"leakage_pct_of_revenue"`
	RiskCategory        RiskCategory     `gorm:"size:10;index;not null" json:"risk_category"`
}

func (CustomerRiskProfile) TableName() string {
	return "customer_risk_profiles"
}

// CustomerLeakage is the per-customer input of the ranking stage.
type CustomerLeakage struct {
	CustomerId   string          `json:"customer_id"`
	Country      string          `json:"country"`
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalLeakage decimal.Decimal `json:"total_leakage"`
}

// CustomerLeakageRanked places a customer within its country. Rank 1 is the
// largest leakage; ties share rank and percentile.
type CustomerLeakageRanked struct {
	ID                int             `gorm:"primary_key" json:"-"`
	RunId             string          `gorm:"size:64;index;not null" json:"run_id,omitempty"`
	CustomerId        string          `gorm:"size:64;not null" json:"customer_id"`
	Country           string          `gorm:"size:100;index" json:"country"`
	TotalOrders       int             `json:"total_orders"`
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(38,16)" json:"total_revenue"`
	TotalLeakage      decimal.Decimal `gorm:"type:decimal(38,16)" json:"total_leakage"`
	LeakageRank       int             `json:"leakage_rank"`
	LeakagePercentile decimal.Decimal `gorm:"type:decimal(9,2)" json:"leakage_percentile"`
	RiskTier          RiskCategory    `gorm:"size:10;index;not null" json:"risk_tier"`
}

func (CustomerLeakageRanked) TableName() string {
	return "customer_leakage_rankings"
}
