package oracle

import (
	"context"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// MockClassifier is a test double for Classifier.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, text string) (*ClassificationResult, error)
	Calls        int
}

var _ Classifier = (*MockClassifier)(nil)

// Classify implements Classifier.
func (m *MockClassifier) Classify(ctx context.Context, text string) (*ClassificationResult, error) {
	m.Calls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text)
	}
	return &ClassificationResult{DocType: "OTHER", Confidence: 0.5, Tier: "mock"}, nil
}

// MockExtractor is a test double for Extractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error)
	Calls       int
	LastClass   models.RoutingClass
}

var _ Extractor = (*MockExtractor)(nil)

// Extract implements Extractor.
func (m *MockExtractor) Extract(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error) {
	m.Calls++
	m.LastClass = class
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text, class)
	}
	return nil, nil
}

// MockRecognizer is a test double for TextRecognizer.
type MockRecognizer struct {
	RecognizeFunc func(ctx context.Context, data []byte) (string, error)
	Calls         int
}

var _ TextRecognizer = (*MockRecognizer)(nil)

// Recognize implements TextRecognizer.
func (m *MockRecognizer) Recognize(ctx context.Context, data []byte) (string, error) {
	m.Calls++
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, data)
	}
	return string(data), nil
}

// MockScanner is a test double for VirusScanner.
type MockScanner struct {
	ScanFunc func(ctx context.Context, data []byte) (*ScanResult, error)
	Calls    int
}

var _ VirusScanner = (*MockScanner)(nil)

// Scan implements VirusScanner.
func (m *MockScanner) Scan(ctx context.Context, data []byte) (*ScanResult, error) {
	m.Calls++
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, data)
	}
	return &ScanResult{Status: models.ScanStatusClean, Engine: "mock"}, nil
}
