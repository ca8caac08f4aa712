package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus represents a virus-scan verdict.
type ScanStatus string

const (
	ScanStatusUnknown  ScanStatus = "unknown"
	ScanStatusClean    ScanStatus = "clean"
	ScanStatusInfected ScanStatus = "infected"
	ScanStatusFailed   ScanStatus = "failed"
)

// IsValid returns true if the status is a known scan status.
func (s ScanStatus) IsValid() bool {
	switch s {
	case ScanStatusUnknown, ScanStatusClean, ScanStatusInfected, ScanStatusFailed:
		return true
	default:
		return false
	}
}

// ScanCacheEntry records a virus-scan verdict for a content digest.
// At most one entry exists per (tenant, digest): the scan result is a pure
// function of content and engine version, so the first recorded result wins
// and later scans of identical content are dropped on insert.
type ScanCacheEntry struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	Digest    string     `json:"digest"`
	Status    ScanStatus `json:"status"`
	Signature *string    `json:"signature,omitempty"`
	Engine    string     `json:"engine"`
	ScannedAt time.Time  `json:"scanned_at"`
}
