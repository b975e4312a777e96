package utils

import "errors"

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrorRunInProgress   = errors.New("a leakage run for this dataset is already in progress")
	ErrorServiceNotReady = errors.New("service not ready")
)
