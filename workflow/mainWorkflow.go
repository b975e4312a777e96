package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("leakage-pipeline")

type RunOptions struct {
	// AnalysisDate stamps the summary. It is an input so that two runs over
	// the same snapshot produce equal output; zero means today (UTC).
	AnalysisDate time.Time
	// Rules defaults to config.DefaultLeakageRules when nil.
	Rules *config.LeakageRules
}

// RunResult is the output bundle of one pipeline run. Every slice is written
// once by its stage and never revised.
type RunResult struct {
	Issues           []models.ValidationIssue       `json:"issues"`
	IssueCounts      map[models.IssueKind]int       `json:"issue_counts"`
	Validated        models.Validated               `json:"validated"`
	Summary          models.LeakageSummary          `json:"summary"`
	ProductLeakages  []models.ProductLeakage        `json:"product_leakages"`
	ChannelAbuses    []models.ChannelDiscountAbuse  `json:"channel_abuses"`
	CustomerProfiles []models.CustomerRiskProfile   `json:"customer_profiles"`
	CustomerRankings []models.CustomerLeakageRanked `json:"customer_rankings"`
}

// Outputs returns the persisted part of the bundle.
func (r *RunResult) Outputs() *models.RunOutputs {
	return &models.RunOutputs{
		Issues:           r.Issues,
		ProductLeakages:  r.ProductLeakages,
		ChannelAbuses:    r.ChannelAbuses,
		CustomerProfiles: r.CustomerProfiles,
		CustomerRankings: r.CustomerRankings,
	}
}

func (r *RunResult) HighRiskCount() int {
	count := 0
	for _, p := range r.CustomerProfiles {
		if p.RiskCategory == models.RiskCategoryHigh {
			count++
		}
	}
	return count
}

// RunLeakagePipeline is a pure function of the snapshot: integrity checks and
// reconciliation fan out per entity, the aggregates fan out once the
// validated layer is complete, and ranking follows the customer aggregate.
// The only error cases are structural input failures and cancellation.
func RunLeakagePipeline(ctx context.Context, snapshot *models.Snapshot, opts RunOptions) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "RunLeakagePipeline")
	defer span.End()

	if err := models.ValidateSnapshot(snapshot); err != nil {
		span.RecordError(err)
		return nil, err
	}
	rules := config.DefaultLeakageRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	analysisDate := opts.AnalysisDate
	if analysisDate.IsZero() {
		analysisDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	counts := snapshot.Counts()
	span.SetAttributes(
		attribute.Int("orders", counts.Orders),
		attribute.Int("order_items", counts.OrderItems),
		attribute.Int("products", counts.Products),
		attribute.Int("customers", counts.Customers),
	)

	result := &RunResult{}

	// integrity checks and reconciliation
	var orderIssues, itemIssues, productIssues, customerIssues []models.ValidationIssue
	err := runStage(ctx, "validate", []func() error{
		func() error {
			orderIssues = CheckOrderIntegrity(snapshot.Orders, snapshot.Customers, rules)
			return nil
		},
		func() error {
			itemIssues = CheckOrderItemIntegrity(snapshot.OrderItems, snapshot.Orders, snapshot.Products)
			return nil
		},
		func() error {
			productIssues = CheckProductIntegrity(snapshot.Products)
			return nil
		},
		func() error {
			customerIssues = CheckCustomerIntegrity(snapshot.Customers)
			return nil
		},
		func() error {
			result.Validated.OrderItems = ReconcileOrderItems(snapshot.OrderItems, rules)
			return nil
		},
		func() error {
			result.Validated.Orders = ReconcileOrders(snapshot.Orders, rules)
			return nil
		},
		func() error {
			result.Validated.Products = ReconcileProducts(snapshot.Products, rules)
			return nil
		},
		func() error {
			result.Validated.Customers = ReconcileCustomers(snapshot.Customers)
			return nil
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	issues := make([]models.ValidationIssue, 0, len(orderIssues)+len(itemIssues)+len(productIssues)+len(customerIssues))
	issues = append(issues, orderIssues...)
	issues = append(issues, itemIssues...)
	issues = append(issues, productIssues...)
	issues = append(issues, customerIssues...)
	result.Issues = issues
	result.IssueCounts = models.CountIssuesByKind(issues)

	// aggregates over the validated layer
	var customerLeakages []models.CustomerLeakage
	validated := result.Validated
	err = runStage(ctx, "aggregate", []func() error{
		func() error {
			result.Summary = SummarizeLeakage(validated.OrderItems, analysisDate)
			return nil
		},
		func() error {
			result.ProductLeakages = AggregateProductLeakage(validated.OrderItems, validated.Products)
			return nil
		},
		func() error {
			result.ChannelAbuses = AggregateChannelDiscountAbuse(validated.Orders, rules)
			return nil
		},
		func() error {
			result.CustomerProfiles, customerLeakages = AggregateCustomerRisk(validated.Orders, validated.Customers, rules)
			return nil
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// ranking consumes the customer aggregate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.CustomerRankings = RankCustomers(customerLeakages, rules)

	span.SetAttributes(attribute.Int("issues", len(result.Issues)))
	return result, nil
}

// runStage runs independent tasks concurrently. Each task writes only its own
// output variable.
func runStage(ctx context.Context, name string, tasks []func() error) error {
	ctx, span := tracer.Start(ctx, "stage."+name, trace.WithAttributes(attribute.Int("tasks", len(tasks))))
	defer span.End()

	g, gCtx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return task()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	return ctx.Err()
}
