package utils

import (
	"context"

	"github.com/mmdatafocus/leakage_backend/appctx"
)

var (
	ContextKeyRunId         = appctx.ContextKeyRunId
	ContextKeyDataset       = appctx.ContextKeyDataset
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyRequestedBy   = appctx.ContextKeyRequestedBy
)

func GetRunIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRunId)
}

func GetDatasetFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyDataset)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetRequestedByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestedBy)
}

func SetRunIdInContext(ctx context.Context, runId string) context.Context {
	return appctx.Set(ctx, ContextKeyRunId, runId)
}

func SetDatasetInContext(ctx context.Context, dataset string) context.Context {
	return appctx.Set(ctx, ContextKeyDataset, dataset)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetRequestedByInContext(ctx context.Context, requestedBy string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestedBy, requestedBy)
}
