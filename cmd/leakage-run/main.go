package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/ingest"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/models/reports"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/mmdatafocus/leakage_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	source := flag.String("source", "csv", "Record source: csv, mysql or postgres.")
	dataDir := flag.String("data-dir", ".", "Directory holding orders.csv, order_items.csv, products.csv and customers.csv (csv source).")
	dataset := flag.String("dataset", "default", "Dataset name recorded on the run.")
	asOf := flag.String("as-of", "", "Optional: analysis date (YYYY-MM-DD). Defaults to today (UTC).")
	xlsxPath := flag.String("xlsx", "", "Optional: write the report workbook to this path.")
	persist := flag.Bool("persist", false, "Record the run in the MySQL result tables.")
	requestKey := flag.String("request-key", "", "Optional: idempotency key for a persisted run.")
	publish := flag.Bool("publish", false, "Publish the completion event (requires -persist and PUBSUB_RUN_TOPIC).")
	flag.Parse()

	logger := config.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = utils.SetRequestedByInContext(ctx, "leakage-run")

	rules, err := config.LoadLeakageRules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid leakage rules: %v\n", err)
		os.Exit(1)
	}
	opts := workflow.RunOptions{Rules: &rules}
	if s := strings.TrimSpace(*asOf); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -as-of %q: %v\n", s, err)
			os.Exit(1)
		}
		opts.AnalysisDate = d
	}
	if *publish && !*persist {
		fmt.Fprintln(os.Stderr, "-publish requires -persist")
		os.Exit(1)
	}
	if *publish {
		os.Setenv("PUBLISH_RUN_EVENTS", "true")
	}

	if *persist || *source == "mysql" {
		// Explicit DB connect (config does not connect in init()).
		config.ConnectDatabaseWithRetry()
		if config.GetDB() == nil {
			fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
			os.Exit(1)
		}
	}

	var recordSource models.RecordSource
	switch *source {
	case "csv":
		recordSource = ingest.NewCSVSource(*dataDir)
	case "mysql":
		recordSource = models.NewGormSource(config.GetDB())
	case "postgres":
		if err := config.InitPostgres(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect warehouse: %v\n", err)
			os.Exit(1)
		}
		defer config.ClosePostgres()
		recordSource = models.NewPgSource(config.GetPostgresPool())
	default:
		fmt.Fprintf(os.Stderr, "unknown -source %q (csv, mysql or postgres)\n", *source)
		os.Exit(1)
	}

	var sink workflow.ResultSink
	if *persist {
		// Ensure the result tables exist.
		models.MigrateTable()
		sink = workflow.NewGormSink(config.GetDB())
	}

	outcome, err := workflow.ProcessLeakageRun(ctx, logger, recordSource, sink, workflow.LeakageRunRequest{
		Dataset:     *dataset,
		RequestKey:  strings.TrimSpace(*requestKey),
		RequestedBy: "leakage-run",
		Options:     opts,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "leakage run failed: %v\n", err)
		os.Exit(1)
	}
	if outcome.Duplicate {
		fmt.Printf("request key already recorded as run %s\n", outcome.Run.ID)
		return
	}

	result := outcome.Result
	summary := reports.PresentSummary(result.Summary)
	leakagePct := "n/a"
	if summary.LeakagePct != nil {
		leakagePct = summary.LeakagePct.StringFixed(2) + "%"
	}
	logger.WithFields(logrus.Fields{
		"run_id":         outcome.Run.ID,
		"analysis_date":  summary.AnalysisDate.Format("2006-01-02"),
		"total_expected": summary.TotalExpected.StringFixed(2),
		"total_realized": summary.TotalRealized.StringFixed(2),
		"diff":           summary.Diff.StringFixed(2),
		"leakage_pct":    leakagePct,
		"issues":         len(result.Issues),
		"high_risk":      result.HighRiskCount(),
	}).Info("leakage summary")

	for _, c := range reports.IssueCountsByKind(result.Issues) {
		if c.Count > 0 {
			fmt.Printf("%-20s %d\n", c.IssueKind, c.Count)
		}
	}
	for _, p := range reports.PresentProductLeakages(reports.TopLeakingProducts(result.ProductLeakages, 5)) {
		fmt.Printf("product %-12s leakage %s\n", p.ProductId, p.Leakage.StringFixed(2))
	}
	for _, ch := range reports.AbusedChannels(result.ChannelAbuses) {
		fmt.Printf("channel %-12s abused: avg discount %s%%, leakage %s\n", ch.Source, ch.AvgDiscountPct.StringFixed(2), ch.DiscountLeakage.StringFixed(2))
	}

	if *xlsxPath != "" {
		report := &reports.LeakageReport{
			Run:              outcome.Run,
			Summary:          result.Summary,
			IssueCounts:      reports.IssueCountsByKind(result.Issues),
			Issues:           result.Issues,
			ProductLeakages:  result.ProductLeakages,
			ChannelAbuses:    result.ChannelAbuses,
			CustomerProfiles: result.CustomerProfiles,
			CustomerRankings: result.CustomerRankings,
		}
		out, err := os.Create(*xlsxPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *xlsxPath, err)
			os.Exit(1)
		}
		if err := reports.WriteLeakageWorkbook(out, report); err != nil {
			_ = out.Close()
			fmt.Fprintf(os.Stderr, "failed to write workbook: %v\n", err)
			os.Exit(1)
		}
		if err := out.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close %s: %v\n", *xlsxPath, err)
			os.Exit(1)
		}
		fmt.Printf("workbook written to %s\n", *xlsxPath)
	}
}
