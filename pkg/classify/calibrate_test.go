package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buddy-hq/buddy-engine/pkg/models"
)

func cleanInput() CalibrationInput {
	year := 2023
	return CalibrationInput{
		BaseConfidence:  0.95,
		Tier:            "primary",
		FormNumbers:     []string{"1120"},
		DetectedYears:   []int{2023},
		AssertedTaxYear: &year,
		TextLength:      12000,
	}
}

func TestCalibrate_NoPenalties(t *testing.T) {
	result := Calibrate(cleanInput())
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, models.BandHigh, result.Band)
	assert.Empty(t, result.Penalties)
}

func TestCalibrate_Penalties(t *testing.T) {
	t.Run("ambiguity", func(t *testing.T) {
		in := cleanInput()
		in.Confusables = []string{"INCOME_STATEMENT"}
		result := Calibrate(in)
		assert.InDelta(t, 0.95-AmbiguityPenalty, result.Confidence, 1e-9)
		assert.Contains(t, result.Penalties, "ambiguity")
	})

	t.Run("multi form", func(t *testing.T) {
		in := cleanInput()
		in.FormNumbers = []string{"1120", "1040"}
		result := Calibrate(in)
		assert.InDelta(t, 0.95-MultiFormPenalty, result.Confidence, 1e-9)
	})

	t.Run("no year signal", func(t *testing.T) {
		in := cleanInput()
		in.AssertedTaxYear = nil
		in.DetectedYears = nil
		result := Calibrate(in)
		assert.InDelta(t, 0.95-NoYearPenalty, result.Confidence, 1e-9)
	})

	t.Run("low text density", func(t *testing.T) {
		in := cleanInput()
		in.TextLength = 40
		result := Calibrate(in)
		assert.InDelta(t, 0.95-LowTextPenalty, result.Confidence, 1e-9)
	})
}

func TestCalibrate_Bounds(t *testing.T) {
	// Every penalty stacked on a low base must still respect the floor.
	in := CalibrationInput{
		BaseConfidence: 0.4,
		Confusables:    []string{"A", "B"},
		FormNumbers:    []string{"1120", "1040", "1065"},
		TextLength:     10,
	}
	result := Calibrate(in)
	assert.Equal(t, MinConfidence, result.Confidence)
	assert.Equal(t, models.BandLow, result.Band)

	// A perfect base with zero penalties must respect the ceiling.
	clean := cleanInput()
	clean.BaseConfidence = 1.0
	result = Calibrate(clean)
	assert.Equal(t, MaxConfidence, result.Confidence)

	// Out-of-range bases are clamped before penalties apply.
	wild := cleanInput()
	wild.BaseConfidence = 3.5
	assert.LessOrEqual(t, Calibrate(wild).Confidence, MaxConfidence)
	wild.BaseConfidence = -1
	assert.GreaterOrEqual(t, Calibrate(wild).Confidence, MinConfidence)
}

func TestCalibrate_Monotonicity(t *testing.T) {
	// Adding a penalty condition never increases the calibrated confidence.
	base := cleanInput()
	baseline := Calibrate(base).Confidence

	withSecondForm := base
	withSecondForm.FormNumbers = []string{"1120", "1040"}
	assert.LessOrEqual(t, Calibrate(withSecondForm).Confidence, baseline)

	withConfusable := base
	withConfusable.Confusables = []string{"BALANCE_SHEET"}
	assert.LessOrEqual(t, Calibrate(withConfusable).Confidence, baseline)
}

func TestCalibrate_Deterministic(t *testing.T) {
	in := cleanInput()
	in.Confusables = []string{"T12"}
	first := Calibrate(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Calibrate(in))
	}
}

func TestDeriveBand_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		band  models.ConfidenceBand
	}{
		{0.88, models.BandHigh},
		{0.87, models.BandMedium},
		{0.75, models.BandMedium},
		{0.74, models.BandLow},
		{0.99, models.BandHigh},
		{0.0, models.BandLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.band, DeriveBand(tt.score), "score %v", tt.score)
	}
}
