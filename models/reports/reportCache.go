package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/mmdatafocus/leakage_backend/utils"
	"github.com/sirupsen/logrus"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	logger := config.GetLogger()
	if logger == nil {
		return
	}
	runId, _ := utils.GetRunIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"run_id":         runId,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

func runReportKey(runId string, name string) string {
	return fmt.Sprintf("leakage-report:run:%s:%s", runId, name)
}

func datasetReportKey(dataset string, name string) string {
	return fmt.Sprintf("leakage-report:dataset:%s:%s", dataset, name)
}

func datasetKeySet(dataset string) string {
	return fmt.Sprintf("leakage-report-keys:%s", dataset)
}

// cachedReport serves key from redis when the cache is enabled, otherwise
// loads and stores it. trackSet, when set, records the key for later
// invalidation. Cache failures never fail the report.
func cachedReport[T any](ctx context.Context, name string, key string, trackSet string, load func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	defer logSlowReport(ctx, name, started, map[string]any{"key": key})

	logger := config.GetLogger()
	useCache := reportCacheEnabled() && config.GetRedisDB() != nil
	if useCache {
		var cached T
		found, err := config.GetRedisObject(ctx, key, &cached)
		if err != nil {
			config.LogError(logger, "reportCache.go", "cachedReport", "Reading report cache", key, err)
		} else if found {
			return cached, nil
		}
	}

	result, err := load(ctx)
	if err != nil {
		return result, err
	}

	if useCache {
		if err := config.SetRedisObject(ctx, key, result, reportCacheTTL()); err != nil {
			config.LogError(logger, "reportCache.go", "cachedReport", "Writing report cache", key, err)
		} else if trackSet != "" {
			if err := config.AddRedisSet(ctx, trackSet, key); err != nil {
				config.LogError(logger, "reportCache.go", "cachedReport", "Tracking report cache key", key, err)
			}
		}
	}
	return result, nil
}

// InvalidateDatasetReports drops the cached dataset-level reports (run
// listings for the dataset and the unfiltered listing) after a new run is
// recorded. Per-run reports are immutable and simply expire.
func InvalidateDatasetReports(ctx context.Context, dataset string) error {
	if config.GetRedisDB() == nil {
		return nil
	}
	var keys []string
	for _, setKey := range utils.UniqueSlice([]string{datasetKeySet(dataset), datasetKeySet("")}) {
		members, err := config.GetRedisSetMembers(ctx, setKey)
		if err != nil {
			return err
		}
		keys = append(keys, members...)
		keys = append(keys, setKey)
	}
	return config.RemoveRedisKey(ctx, keys...)
}
