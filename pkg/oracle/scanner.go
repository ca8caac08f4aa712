package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// HTTPScanner calls the virus-scan service over HTTP. The service accepts
// raw bytes and responds with {"status": "...", "signature": "...",
// "engine": "..."}.
type HTTPScanner struct {
	endpoint string
	engine   string
	client   *http.Client
}

var _ VirusScanner = (*HTTPScanner)(nil)

// NewHTTPScanner creates a scanner client for the given service endpoint.
func NewHTTPScanner(endpoint, engine string, timeout time.Duration) *HTTPScanner {
	return &HTTPScanner{
		endpoint: endpoint,
		engine:   engine,
		client:   &http.Client{Timeout: timeout},
	}
}

// Scan implements VirusScanner.
func (s *HTTPScanner) Scan(ctx context.Context, data []byte) (*ScanResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/scan", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scan request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scan service returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Status    string  `json:"status"`
		Signature *string `json:"signature"`
		Engine    string  `json:"engine"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode scan response: %w", err)
	}

	status := models.ScanStatus(payload.Status)
	if !status.IsValid() {
		status = models.ScanStatusFailed
	}
	engine := payload.Engine
	if engine == "" {
		engine = s.engine
	}

	return &ScanResult{Status: status, Signature: payload.Signature, Engine: engine}, nil
}
