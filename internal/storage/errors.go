package storage

import "errors"

// Sentinel errors translated from sql.ErrNoRows, per
// internal/repository/order_repository.go's translation style.
var (
	ErrSignalNotFound    = errors.New("storage: signal not found")
	ErrTrackingNotFound  = errors.New("storage: tracking not found")
	ErrBaselineNotFound  = errors.New("storage: baseline bucket not found")
	ErrPairStatsNotFound = errors.New("storage: pair statistics not found")
	ErrPositionNotFound  = errors.New("storage: position not found")
	ErrAnalysisNotFound  = errors.New("storage: convergence analysis not found")
)
