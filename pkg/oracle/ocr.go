package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TextRecognizer turns raw document bytes into text.
type TextRecognizer interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}

// HTTPRecognizer calls the OCR sidecar over HTTP. The sidecar accepts raw
// bytes and responds with {"text": "..."}.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

var _ TextRecognizer = (*HTTPRecognizer)(nil)

// NewHTTPRecognizer creates an OCR client for the given sidecar endpoint.
func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Recognize implements TextRecognizer.
func (r *HTTPRecognizer) Recognize(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/recognize", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("OCR service returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode OCR response: %w", err)
	}

	return payload.Text, nil
}
