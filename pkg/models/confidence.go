package models

// ConfidenceBand is the discrete banding of a calibrated classification
// confidence, used by the UI to flag documents instead of rejecting them.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "HIGH"
	BandMedium ConfidenceBand = "MEDIUM"
	BandLow    ConfidenceBand = "LOW"
)

// IsValid returns true if the band is known.
func (b ConfidenceBand) IsValid() bool {
	switch b {
	case BandHigh, BandMedium, BandLow:
		return true
	default:
		return false
	}
}
