package oracle

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/retry"
)

const highFidelitySystemPrompt = `You extract structured financial fields from
underwriting-critical documents: tax returns, personal financial statements,
debt schedules and W-2s. Accuracy matters more than coverage; emit only fields
you can ground in the text, with per-field confidence. Respond with a JSON
object: {"fields": [{"fact_type": string, "fact_key": string,
"numeric_value": number|null, "text_value": string|null,
"period_start": "YYYY-MM-DD"|null, "period_end": "YYYY-MM-DD"|null,
"confidence": number}]}
fact_type is one of OPERATING, RENT_ROLL, BALANCE_SHEET, PERSONAL, DEBT.
fact_key uses "<section>/<line item>" form, e.g. "INCOME/W2_WAGES".`

// AnthropicExtractor serves the high-fidelity extraction tier.
type AnthropicExtractor struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ Extractor = (*AnthropicExtractor)(nil)

// NewAnthropicExtractor creates the high-fidelity tier client.
func NewAnthropicExtractor(apiKey, model string, logger *zap.Logger) *AnthropicExtractor {
	return &AnthropicExtractor{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("oracle.anthropic"),
	}
}

// Extract implements Extractor.
func (e *AnthropicExtractor) Extract(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error) {
	resp, err := retry.DoWithResult(ctx, retry.OracleConfig(), func() (anthropic.MessagesResponse, error) {
		return e.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(e.model),
			MaxTokens: 8192,
			System:    highFidelitySystemPrompt,
			Messages: []anthropic.Message{
				anthropic.NewUserTextMessage(text),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("high-fidelity extraction request failed: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty extraction response")
	}

	return parseExtractedFields(resp.Content[0].GetText())
}

// RoutedExtractor dispatches extraction to the tier owning each routing class.
type RoutedExtractor struct {
	standard     Extractor // standard + tabular tiers
	highFidelity Extractor
}

var _ Extractor = (*RoutedExtractor)(nil)

// NewRoutedExtractor composes the tier clients into one Extractor.
func NewRoutedExtractor(standard, highFidelity Extractor) *RoutedExtractor {
	return &RoutedExtractor{standard: standard, highFidelity: highFidelity}
}

// Extract implements Extractor.
func (r *RoutedExtractor) Extract(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error) {
	if class == models.RoutingHighFidelity {
		return r.highFidelity.Extract(ctx, text, class)
	}
	return r.standard.Extract(ctx, text, class)
}
