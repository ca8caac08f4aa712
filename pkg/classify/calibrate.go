package classify

import (
	"github.com/buddy-hq/buddy-engine/pkg/models"
)

// Calibration constants. Penalties are additive subtractions from the base
// confidence; the result is clamped into [MinConfidence, MaxConfidence] so a
// fully penalized score is never worthless and a clean score is never certain.
const (
	MinConfidence = 0.35
	MaxConfidence = 0.99

	AmbiguityPenalty = 0.08
	MultiFormPenalty = 0.10
	NoYearPenalty    = 0.05
	LowTextPenalty   = 0.07

	// LowTextThreshold is the extracted-text length below which a document is
	// considered too sparse to classify reliably.
	LowTextThreshold = 500

	// Band thresholds on the calibrated score.
	HighBandThreshold   = 0.88
	MediumBandThreshold = 0.75
)

// CalibrationInput carries the raw classifier output and the structural
// signals used to penalize it. All fields describe untrusted oracle output.
type CalibrationInput struct {
	// BaseConfidence is the raw classifier confidence in [0,1].
	BaseConfidence float64

	// Tier names the classifier tier that produced the result (recorded in
	// the output, not penalized).
	Tier string

	// Confusables lists alternative classifications the classifier considered
	// plausible.
	Confusables []string

	// FormNumbers lists IRS form numbers detected in the text. More than one
	// suggests a bundled multi-document upload.
	FormNumbers []string

	// DetectedYears lists tax years detected in the text.
	DetectedYears []int

	// AssertedTaxYear is the tax year the classifier asserted, if any.
	AssertedTaxYear *int

	// TextLength is the length of the extracted text.
	TextLength int
}

// CalibrationResult is the penalized, clamped, banded confidence.
type CalibrationResult struct {
	Confidence float64
	Band       models.ConfidenceBand
	Tier       string

	// Penalties names the penalty conditions that fired, for audit events.
	Penalties []string
}

// Calibrate applies the structural penalties to a base confidence and clamps
// the result. Pure and deterministic: same inputs always produce the same
// output.
func Calibrate(in CalibrationInput) CalibrationResult {
	score := in.BaseConfidence
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	var penalties []string

	if len(in.Confusables) > 0 {
		score -= AmbiguityPenalty
		penalties = append(penalties, "ambiguity")
	}

	if len(in.FormNumbers) > 1 {
		score -= MultiFormPenalty
		penalties = append(penalties, "multi_form")
	}

	if in.AssertedTaxYear == nil && len(in.DetectedYears) == 0 {
		score -= NoYearPenalty
		penalties = append(penalties, "no_year_signal")
	}

	if in.TextLength < LowTextThreshold {
		score -= LowTextPenalty
		penalties = append(penalties, "low_text_density")
	}

	if score < MinConfidence {
		score = MinConfidence
	}
	if score > MaxConfidence {
		score = MaxConfidence
	}

	return CalibrationResult{
		Confidence: score,
		Band:       DeriveBand(score),
		Tier:       in.Tier,
		Penalties:  penalties,
	}
}

// DeriveBand is a pure threshold function on the calibrated score.
func DeriveBand(score float64) models.ConfidenceBand {
	switch {
	case score >= HighBandThreshold:
		return models.BandHigh
	case score >= MediumBandThreshold:
		return models.BandMedium
	default:
		return models.BandLow
	}
}
