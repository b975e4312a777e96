package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/ingest"
	"github.com/mmdatafocus/leakage_backend/models"
	"github.com/mmdatafocus/leakage_backend/models/reports"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/mmdatafocus/leakage_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// RunRequestBody is accepted by POST /runs and by the push subscription.
type RunRequestBody struct {
	Dataset     string `json:"dataset" validate:"omitempty,max=64"`
	RequestKey  string `json:"request_key" validate:"omitempty,max=128"`
	Source      string `json:"source" validate:"omitempty,oneof=mysql postgres csv"`
	AsOf        string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	RequestedBy string `json:"requested_by" validate:"omitempty,max=100"`
}

type runResponse struct {
	Run         *models.LeakageRun    `json:"run"`
	Summary     models.LeakageSummary `json:"summary"`
	IssueCounts []reports.IssueCount  `json:"issue_counts,omitempty"`
	Duplicate   bool                  `json:"duplicate"`
}

type exportPointer struct {
	Object string `json:"object"`
	URL    string `json:"url"`
}

var leakageRules config.LeakageRules

// recordSourceFor resolves where a run reads its raw tables from. An empty
// name falls back to RECORD_SOURCE, then mysql.
func recordSourceFor(name string, dataset string) (models.RecordSource, error) {
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(os.Getenv("RECORD_SOURCE")))
	}
	switch name {
	case "", "mysql":
		return models.NewGormSource(config.GetDB()), nil
	case "postgres":
		pool := config.GetPostgresPool()
		if pool == nil {
			return nil, utils.ErrorServiceNotReady
		}
		return models.NewPgSource(pool), nil
	case "csv":
		root := strings.TrimSpace(os.Getenv("CSV_DATA_DIR"))
		if root == "" {
			return nil, fmt.Errorf("CSV_DATA_DIR is required for csv runs: %w", utils.ErrorServiceNotReady)
		}
		if dataset == "" {
			dataset = "default"
		}
		return ingest.NewCSVSource(filepath.Join(root, filepath.Base(dataset))), nil
	}
	return nil, fmt.Errorf("unknown record source %q", name)
}

func (b RunRequestBody) leakageRunRequest() (workflow.LeakageRunRequest, error) {
	req := workflow.LeakageRunRequest{
		Dataset:     b.Dataset,
		RequestKey:  b.RequestKey,
		RequestedBy: b.RequestedBy,
		Options:     workflow.RunOptions{Rules: &leakageRules},
	}
	if b.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", b.AsOf)
		if err != nil {
			return req, err
		}
		req.Options.AnalysisDate = asOf
	}
	return req, nil
}

func startRun(ctx context.Context, logger *logrus.Logger, body RunRequestBody) (*workflow.LeakageRunOutcome, error) {
	if err := utils.ValidateStruct(body); err != nil {
		return nil, err
	}
	source, err := recordSourceFor(body.Source, body.Dataset)
	if err != nil {
		return nil, err
	}
	req, err := body.leakageRunRequest()
	if err != nil {
		return nil, err
	}
	return workflow.ProcessLeakageRun(ctx, logger, source, workflow.NewGormSink(config.GetDB()), req)
}

func createRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var body RunRequestBody
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		outcome, err := startRun(c.Request.Context(), logger, body)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := runResponse{
			Run:       outcome.Run,
			Summary:   reports.PresentSummary(outcome.Run.Summary()),
			Duplicate: outcome.Duplicate,
		}
		status := http.StatusOK
		if outcome.Result != nil {
			resp.IssueCounts = reports.IssueCountsByKind(outcome.Result.Issues)
			status = http.StatusCreated
		}
		c.JSON(status, resp)
	}
}

func listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		runs, err := reports.GetLeakageRuns(c.Request.Context(), c.Query("dataset"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := reports.GetRunOverview(c.Request.Context(), c.Param("runId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, overview)
	}
}

func runIssuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		issues, err := reports.GetRunIssues(c.Request.Context(), c.Param("runId"), models.IssueKind(c.Query("kind")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	}
}

func runProductsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		rows, err := reports.GetProductLeakageReport(c.Request.Context(), c.Param("runId"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": rows})
	}
}

func runChannelsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		abusedOnly := strings.EqualFold(c.Query("abused"), "true")
		rows, err := reports.GetChannelAbuseReport(c.Request.Context(), c.Param("runId"), abusedOnly)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": rows})
	}
}

func runCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		risk := models.RiskCategory(c.Query("risk"))
		if risk != "" && !risk.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "risk must be High, Medium or Low"})
			return
		}
		rows, err := reports.GetCustomerRiskReport(c.Request.Context(), c.Param("runId"), risk)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"customers": rows})
	}
}

func runRankingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tier := models.RiskCategory(c.Query("tier"))
		if tier != "" && !tier.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be High, Medium or Low"})
			return
		}
		rows, err := reports.GetCustomerRankingReport(c.Request.Context(), c.Param("runId"), c.Query("country"), tier)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rankings": rows})
	}
}

// exportRunHandler streams the run workbook, or uploads it to GCS when
// upload=true and answers with the object location.
func exportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		runId := c.Param("runId")
		report, err := reports.GetLeakageReport(ctx, runId)
		if err != nil {
			respondError(c, err)
			return
		}
		data, err := reports.LeakageWorkbookBytes(report)
		if err != nil {
			respondError(c, err)
			return
		}

		if strings.EqualFold(c.Query("upload"), "true") {
			objectName := utils.ReportObjectName(report.Run.Dataset, runId)
			if err := utils.UploadBytesToGCS(ctx, objectName, data, utils.XlsxContentType); err != nil {
				config.LogError(config.GetLogger(), "server.go", "exportRunHandler", "Uploading workbook", objectName, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
				return
			}
			c.JSON(http.StatusOK, exportPointer{Object: objectName, URL: utils.BuildObjectAccessURL(objectName)})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"leakage-%s.xlsx\"", runId))
		c.Data(http.StatusOK, utils.XlsxContentType, data)
	}
}

// runRequestPubSubHandler accepts run requests from a push subscription.
// Malformed messages are acked; failed runs are nacked so Pub/Sub retries.
func runRequestPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "runRequestPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "runRequestPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}
		var req RunRequestBody
		if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
			config.LogError(logger, "server.go", "runRequestPubSubHandler", "Unmarshal run request", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		// the message id keeps redelivered messages from recording a second run
		if req.RequestKey == "" {
			req.RequestKey = "pubsub:" + msg.Message.ID
		}
		if req.RequestedBy == "" {
			req.RequestedBy = "pubsub"
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), msg.Message.ID)
		outcome, err := startRun(ctx, logger, req)
		if err != nil {
			var validationErrors validator.ValidationErrors
			var structuralErr *models.StructuralError
			if errors.As(err, &validationErrors) || errors.As(err, &structuralErr) {
				config.LogError(logger, "server.go", "runRequestPubSubHandler", "Rejected run request", req, err)
				c.Status(http.StatusNoContent)
				return
			}
			logger.WithFields(logrus.Fields{
				"field":       "runRequestPubSubHandler",
				"dataset":     req.Dataset,
				"request_key": req.RequestKey,
				"message_id":  msg.Message.ID,
			}).Error("run request failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		logger.WithFields(logrus.Fields{
			"field":      "runRequestPubSubHandler",
			"run_id":     outcome.Run.ID,
			"duplicate":  outcome.Duplicate,
			"message_id": msg.Message.ID,
		}).Info("run request processed")
		c.Status(http.StatusNoContent)
	}
}

func respondError(c *gin.Context, err error) {
	var structuralErr *models.StructuralError
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorServiceNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &validationErrors):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
	case errors.As(err, &structuralErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  structuralErr.Error(),
			"entity": structuralErr.Entity,
			"key":    structuralErr.Key,
			"row":    structuralErr.Row,
			"field":  structuralErr.Field,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	rules, err := config.LoadLeakageRules()
	if err != nil {
		log.Fatalf("invalid leakage rules: %v", err)
	}
	leakageRules = rules

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if requestedBy := c.GetHeader("x-requested-by"); requestedBy != "" {
			ctx = utils.SetRequestedByInContext(ctx, requestedBy)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-requested-by")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/runs", createRunHandler())
	r.GET("/runs", listRunsHandler())
	run := r.Group("/runs/:runId")
	run.GET("", getRunHandler())
	run.GET("/issues", runIssuesHandler())
	run.GET("/products", runProductsHandler())
	run.GET("/channels", runChannelsHandler())
	run.GET("/customers", runCustomersHandler())
	run.GET("/rankings", runRankingsHandler())
	run.GET("/export", exportRunHandler())
	r.POST("/pubsub", runRequestPubSubHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RECORD_SOURCE")), "postgres") {
		if err := config.InitPostgres(sigCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "warehouse"}).Error("postgres record source unavailable: " + err.Error())
		}
	}
	defer config.ClosePostgres()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("leakage api listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

// NewRateLimiter limits requests per client IP using the shared redis client.
func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: config.GetRedisDB(),
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client
	if client == nil {
		client = config.GetRedisDB()
	}
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
