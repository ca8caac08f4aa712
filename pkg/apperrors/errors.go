package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrNoTemplate           = errors.New("no template registered for spread type")
	ErrInvalidSpreadType    = errors.New("invalid spread type")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrScanGateUnconfigured = errors.New("virus scan gate is not configured")
)
