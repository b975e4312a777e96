package reports

import (
	"bytes"
	"io"
	"strings"

	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary   = "Summary"
	SheetIssues    = "Issues"
	SheetProducts  = "Products"
	SheetChannels  = "Channels"
	SheetCustomers = "Customers"
	SheetRankings  = "Rankings"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type excelSheet struct {
	name     string
	headings []string
	rows     []ExcelExporter
}

// BuildLeakageWorkbook writes one sheet per report. Money values are rounded
// to two places; a nil percentage is left blank.
func BuildLeakageWorkbook(report *LeakageReport) (*excelize.File, error) {
	presented := report.Present()

	f := excelize.NewFile()
	for i, sheet := range leakageSheets(presented) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sheet); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func WriteLeakageWorkbook(w io.Writer, report *LeakageReport) error {
	f, err := BuildLeakageWorkbook(report)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func LeakageWorkbookBytes(report *LeakageReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLeakageWorkbook(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet excelSheet) error {
	for col, h := range sheet.headings {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet.name, cell, h); err != nil {
			return err
		}
	}
	for rowNo, d := range sheet.rows {
		for col, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet.name, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func leakageSheets(r *LeakageReport) []excelSheet {
	summary := excelSheet{
		name:     SheetSummary,
		headings: []string{"AnalysisDate", "TotalExpected", "TotalRealized", "Diff", "LeakagePct"},
		rows:     []ExcelExporter{summaryRow(r.Summary)},
	}
	issues := excelSheet{name: SheetIssues, headings: []string{"EntityKind", "Keys", "IssueKind", "Detail"}}
	for _, row := range r.Issues {
		issues.rows = append(issues.rows, issueRow(row))
	}
	products := excelSheet{name: SheetProducts, headings: []string{
		"ProductId", "ProductName", "Category", "UnitsSold", "ExpectedRevenue", "RealizedRevenue", "Leakage", "LeakagePct"}}
	for _, row := range r.ProductLeakages {
		products.rows = append(products.rows, productRow(row))
	}
	channels := excelSheet{name: SheetChannels, headings: []string{
		"Source", "Orders", "AvgDiscountPct", "TotalDiscountValue", "DiscountLeakage", "AbuseFlag"}}
	for _, row := range r.ChannelAbuses {
		channels.rows = append(channels.rows, channelRow(row))
	}
	customers := excelSheet{name: SheetCustomers, headings: []string{
		"CustomerId", "Country", "TotalOrders", "TotalRevenue", "TotalDiscount", "DiscountIssues", "TotalLeakage", "LeakagePctOfRevenue", "RiskCategory"}}
	for _, row := range r.CustomerProfiles {
		customers.rows = append(customers.rows, customerRow(row))
	}
	rankings := excelSheet{name: SheetRankings, headings: []string{
		"Country", "CustomerId", "TotalOrders", "TotalRevenue", "TotalLeakage", "LeakageRank", "LeakagePercentile", "RiskTier"}}
	for _, row := range r.CustomerRankings {
		rankings.rows = append(rankings.rows, rankingRow(row))
	}
	return []excelSheet{summary, issues, products, channels, customers, rankings}
}

// cell values

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func optionalMoney(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return money(*d)
}

type summaryRow models.LeakageSummary

func (r summaryRow) GetCellValues() []interface{} {
	date := ""
	if !r.AnalysisDate.IsZero() {
		date = r.AnalysisDate.Format("2006-01-02")
	}
	return []interface{}{date, money(r.TotalExpected), money(r.TotalRealized), money(r.Diff), optionalMoney(r.LeakagePct)}
}

type issueRow models.ValidationIssue

func (r issueRow) GetCellValues() []interface{} {
	return []interface{}{string(r.EntityKind), strings.Join(r.Keys, "/"), string(r.IssueKind), r.Detail}
}

type productRow models.ProductLeakage

func (r productRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ProductId, r.ProductName, r.Category, r.UnitsSold,
		money(r.ExpectedRevenue), money(r.RealizedRevenue), money(r.Leakage), optionalMoney(r.LeakagePct),
	}
}

type channelRow models.ChannelDiscountAbuse

func (r channelRow) GetCellValues() []interface{} {
	return []interface{}{
		r.Source, r.Orders, money(r.AvgDiscountPct), money(r.TotalDiscountValue), money(r.DiscountLeakage), string(r.AbuseFlag),
	}
}

type customerRow models.CustomerRiskProfile

func (r customerRow) GetCellValues() []interface{} {
	return []interface{}{
		r.CustomerId, r.Country, r.TotalOrders, money(r.TotalRevenue), money(r.TotalDiscount), r.DiscountIssues,
		money(r.TotalLeakage), optionalMoney(r.LeakagePctOfRevenue), string(r.RiskCategory),
	}
}

type rankingRow models.CustomerLeakageRanked

func (r rankingRow) GetCellValues() []interface{} {
	return []interface{}{
		r.Country, r.CustomerId, r.TotalOrders, money(r.TotalRevenue), money(r.TotalLeakage),
		r.LeakageRank, money(r.LeakagePercentile), string(r.RiskTier),
	}
}
