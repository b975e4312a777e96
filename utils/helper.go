package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/leakage_backend/config"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// PercentOf returns numerator / denominator * 100, or nil when the
// denominator is zero.
func PercentOf(numerator, denominator decimal.Decimal) *decimal.Decimal {
	if denominator.IsZero() {
		return nil
	}
	pct := numerator.Mul(hundred).Div(denominator)
	return &pct
}

// RoundMoney rounds half away from zero to two fractional digits. Use it at
// presentation time only.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func RoundMoneyPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
}

// DecimalPtrString formats d with two fractional digits, nil stays nil.
func DecimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

// DatasetLock obtains the redis lock that serialises leakage runs for one
// dataset. The returned release func is never nil. When redis is not
// connected the lock is skipped; the pipeline itself holds no shared state.
func DatasetLock(ctx context.Context, dataset string, ttl time.Duration, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("lock:leakage-run:%s", dataset)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for dataset", dataset, err)
		return func() {}, ErrorRunInProgress
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for dataset", dataset, err)
		return func() {}, err
	}
	return func() {
		// release with a fresh context; the run context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := lock.Release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Release lock for dataset", dataset, releaseErr)
		}
	}, nil
}
