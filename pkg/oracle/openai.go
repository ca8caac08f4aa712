package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/logging"
	"github.com/buddy-hq/buddy-engine/pkg/models"
	"github.com/buddy-hq/buddy-engine/pkg/retry"
)

const classifySystemPrompt = `You classify commercial loan underwriting documents.
Given document text, respond with a JSON object:
{"doc_type": string, "form_numbers": [string], "tax_year": number|null,
"detected_years": [number], "confidence": number, "confusables": [string],
"issuer": string}
doc_type is a short label such as IRS_1120, RENT_ROLL, PFS, T12, BALANCE_SHEET.
confidence is your calibrated probability in [0,1]. List in confusables any
other doc_type you seriously considered.`

const extractSystemPrompt = `You extract structured financial fields from
commercial loan underwriting documents. Respond with a JSON object:
{"fields": [{"fact_type": string, "fact_key": string, "numeric_value": number|null,
"text_value": string|null, "period_start": "YYYY-MM-DD"|null,
"period_end": "YYYY-MM-DD"|null, "confidence": number}]}
fact_type is one of OPERATING, RENT_ROLL, BALANCE_SHEET, PERSONAL, DEBT.
fact_key uses "<section>/<line item>" form, e.g. "INCOME/BASE_RENT".`

const extractTabularHint = `The document is a multi-page financial statement.
Walk every table row by row; emit one field per line item per period.`

// OpenAIClient implements classification plus the standard and tabular
// extraction tiers against an OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var (
	_ Classifier = (*OpenAIClient)(nil)
	_ Extractor  = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates a classification/extraction client.
func NewOpenAIClient(apiKey, model string, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.Named("oracle.openai"),
	}
}

// Classify implements Classifier.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (*ClassificationResult, error) {
	content, err := c.complete(ctx, classifySystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	var raw struct {
		DocType       json.RawMessage `json:"doc_type"`
		FormNumbers   []string        `json:"form_numbers"`
		TaxYear       *int            `json:"tax_year"`
		DetectedYears []int           `json:"detected_years"`
		Confidence    json.RawMessage `json:"confidence"`
		Confusables   []string        `json:"confusables"`
		Issuer        json.RawMessage `json:"issuer"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONBlock(content)), &raw); err != nil {
		c.logger.Warn("classifier returned malformed JSON",
			zap.String("response", logging.TruncateString(content, 200)))
		return nil, fmt.Errorf("parse classification response: %w", err)
	}

	result := &ClassificationResult{
		DocType:       FlexibleString(raw.DocType),
		FormNumbers:   raw.FormNumbers,
		TaxYear:       raw.TaxYear,
		DetectedYears: raw.DetectedYears,
		Confusables:   raw.Confusables,
		Issuer:        FlexibleString(raw.Issuer),
		Tier:          "primary",
	}
	if v := FlexibleFloat(raw.Confidence); v != nil {
		result.Confidence = *v
	}
	// Untrusted output: clamp before anyone downstream trusts the number.
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	return result, nil
}

// Extract implements Extractor for the standard and tabular tiers.
func (c *OpenAIClient) Extract(ctx context.Context, text string, class models.RoutingClass) ([]ExtractedField, error) {
	system := extractSystemPrompt
	if class == models.RoutingTabular {
		system += "\n" + extractTabularHint
	}

	content, err := c.complete(ctx, system, text)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	return parseExtractedFields(content)
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := retry.DoWithResult(ctx, retry.OracleConfig(), func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0,
		})
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseExtractedFields parses an extraction response, tolerating the usual
// oracle sloppiness: quoted numbers, currency symbols, missing confidence.
func parseExtractedFields(content string) ([]ExtractedField, error) {
	var raw struct {
		Fields []struct {
			FactType     json.RawMessage `json:"fact_type"`
			FactKey      json.RawMessage `json:"fact_key"`
			NumericValue json.RawMessage `json:"numeric_value"`
			TextValue    json.RawMessage `json:"text_value"`
			PeriodStart  *string         `json:"period_start"`
			PeriodEnd    *string         `json:"period_end"`
			Confidence   json.RawMessage `json:"confidence"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONBlock(content)), &raw); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	fields := make([]ExtractedField, 0, len(raw.Fields))
	for _, rf := range raw.Fields {
		field := ExtractedField{
			FactType:     FlexibleString(rf.FactType),
			FactKey:      FlexibleString(rf.FactKey),
			NumericValue: FlexibleFloat(rf.NumericValue),
		}
		if field.FactType == "" || field.FactKey == "" {
			continue
		}
		if s := FlexibleString(rf.TextValue); s != "" {
			field.TextValue = &s
		}
		field.PeriodStart = parseOracleDate(rf.PeriodStart)
		field.PeriodEnd = parseOracleDate(rf.PeriodEnd)
		if v := FlexibleFloat(rf.Confidence); v != nil {
			field.Confidence = *v
		} else {
			field.Confidence = 0.5
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func parseOracleDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "01/02/2006"} {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
