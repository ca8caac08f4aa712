package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/repositories"
)

// GateResult is the outcome of running a document's content through the
// dedup gate. Cache hits for scanning and OCR are independent: either, both,
// or neither may hit for a given digest.
type GateResult struct {
	Digest string

	VirusCacheHit  bool
	VirusStatus    models.ScanStatus
	VirusSignature *string
	VirusEngine    string

	OCRCacheHit   bool
	OCRText       string
	OCRDonorDocID *uuid.UUID
}

// HashGate computes content digests and consults the per-tenant scan and OCR
// caches before any expensive work runs.
type HashGate interface {
	// Fingerprint computes the SHA-256 hex digest of raw content.
	Fingerprint(content []byte) string

	// Check stamps the digest onto the document and probes both caches.
	// Cache lookup failures degrade to misses; the gate never blocks intake.
	Check(ctx context.Context, docID uuid.UUID, content []byte) (*GateResult, error)

	// RecordScan writes a scan verdict into the cache. First writer wins.
	RecordScan(ctx context.Context, tenantID uuid.UUID, digest string, result *models.ScanCacheEntry) error
}

type hashGate struct {
	docRepo   repositories.DocumentRepository
	cacheRepo repositories.ScanCacheRepository
	logger    *zap.Logger
}

// NewHashGate creates a HashGate.
func NewHashGate(docRepo repositories.DocumentRepository, cacheRepo repositories.ScanCacheRepository, logger *zap.Logger) HashGate {
	return &hashGate{
		docRepo:   docRepo,
		cacheRepo: cacheRepo,
		logger:    logger.Named("hash-gate"),
	}
}

var _ HashGate = (*hashGate)(nil)

func (g *hashGate) Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (g *hashGate) Check(ctx context.Context, docID uuid.UUID, content []byte) (*GateResult, error) {
	digest := g.Fingerprint(content)

	if err := g.docRepo.StampDigest(ctx, docID, digest); err != nil {
		return nil, err
	}

	result := &GateResult{
		Digest:      digest,
		VirusStatus: models.ScanStatusUnknown,
	}

	// Scan cache probe. A lookup failure is a miss, not an error: the
	// document just gets scanned fresh.
	entry, err := g.cacheRepo.Get(ctx, digest)
	if err != nil {
		g.logger.Warn("Scan cache lookup failed, treating as miss",
			zap.String("document_id", docID.String()),
			zap.Error(err))
	} else if entry != nil {
		result.VirusCacheHit = true
		result.VirusStatus = entry.Status
		result.VirusSignature = entry.Signature
		result.VirusEngine = entry.Engine
	}

	// OCR donor probe, independent of the scan probe.
	donor, err := g.docRepo.FindOCRDonor(ctx, digest, docID)
	if err != nil {
		g.logger.Warn("OCR donor lookup failed, treating as miss",
			zap.String("document_id", docID.String()),
			zap.Error(err))
	} else if donor != nil {
		result.OCRCacheHit = true
		result.OCRText = donor.Text
		result.OCRDonorDocID = &donor.DocumentID
	}

	return result, nil
}

func (g *hashGate) RecordScan(ctx context.Context, tenantID uuid.UUID, digest string, result *models.ScanCacheEntry) error {
	result.TenantID = tenantID
	result.Digest = digest
	return g.cacheRepo.Put(ctx, result)
}
