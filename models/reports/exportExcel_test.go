package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/xuri/excelize/v2"
)

func sampleReport() *LeakageReport {
	return &LeakageReport{
		Summary: models.LeakageSummary{
			AnalysisDate:  time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
			TotalExpected: dec("75"),
			TotalRealized: dec("70"),
			Diff:          dec("5"),
			LeakagePct:    decPtr("7.142857"),
		},
		Issues: []models.ValidationIssue{
			{EntityKind: models.EntityKindOrderItem, Keys: []string{"O404", "P1"}, IssueKind: models.IssueKindOrphanItem, Detail: "order O404 not found"},
		},
		ProductLeakages: []models.ProductLeakage{
			{ProductId: "P1", ProductName: "Ball", Category: "Toys", UnitsSold: 3, ExpectedRevenue: dec("30"), RealizedRevenue: dec("30"), Leakage: dec("0"), LeakagePct: decPtr("0")},
			{ProductId: "P404", UnitsSold: 1, ExpectedRevenue: dec("5"), RealizedRevenue: dec("5"), Leakage: dec("0")},
		},
		ChannelAbuses: []models.ChannelDiscountAbuse{
			{Source: "Email", Orders: 2, AvgDiscountPct: dec("50"), TotalDiscountValue: dec("190"), DiscountLeakage: dec("170.333"), AbuseFlag: models.AbuseFlagYes},
		},
		CustomerRankings: []models.CustomerLeakageRanked{
			{Country: "US", CustomerId: "C1", TotalOrders: 1, TotalRevenue: dec("91"), TotalLeakage: dec("1"), LeakageRank: 1, LeakagePercentile: dec("0"), RiskTier: models.RiskCategoryLow},
		},
	}
}

func TestBuildLeakageWorkbook_Sheets(t *testing.T) {
	f, err := BuildLeakageWorkbook(sampleReport())
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	want := []string{SheetSummary, SheetIssues, SheetProducts, SheetChannels, SheetCustomers, SheetRankings}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("expected sheets %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheet %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBuildLeakageWorkbook_CellValues(t *testing.T) {
	f, err := BuildLeakageWorkbook(sampleReport())
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	tests := []struct {
		sheet string
		cell  string
		want  string
	}{
		{SheetSummary, "A1", "AnalysisDate"},
		{SheetSummary, "A2", "2024-06-30"},
		{SheetSummary, "B2", "75"},
		{SheetSummary, "E2", "7.14"},
		{SheetIssues, "B2", "O404/P1"},
		{SheetIssues, "C2", "OrphanItem"},
		{SheetProducts, "A3", "P404"},
		{SheetProducts, "H3", ""},
		{SheetChannels, "E2", "170.33"},
		{SheetChannels, "F2", "Yes"},
		{SheetCustomers, "A1", "CustomerId"},
		{SheetCustomers, "A2", ""},
		{SheetRankings, "F2", "1"},
		{SheetRankings, "H2", "Low"},
	}
	for _, tt := range tests {
		got, err := f.GetCellValue(tt.sheet, tt.cell)
		if err != nil {
			t.Fatalf("%s!%s: %v", tt.sheet, tt.cell, err)
		}
		if got != tt.want {
			t.Fatalf("%s!%s: expected %q, got %q", tt.sheet, tt.cell, tt.want, got)
		}
	}
}

func TestLeakageWorkbookBytes_Readable(t *testing.T) {
	data, err := LeakageWorkbookBytes(sampleReport())
	if err != nil {
		t.Fatalf("workbook bytes: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetProducts)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected heading plus 2 product rows, got %d", len(rows))
	}
	if rows[1][0] != "P1" || rows[1][1] != "Ball" {
		t.Fatalf("unexpected first product row: %v", rows[1])
	}
}
