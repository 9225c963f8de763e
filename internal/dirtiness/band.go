package dirtiness

// Dirtiness band constants.
const (
	BandClean    = "clean"
	BandModerate = "moderate"
	BandDirty    = "dirty"
	BandSevere   = "severe"
)

// Score thresholds for banding (upper bounds, exclusive).
const (
	cleanUpper    = 0.25
	moderateUpper = 0.5
	dirtyUpper    = 0.75
)

// Band returns the presentation band for a dirtiness score.
// Rules:
//   - clean: score < 0.25
//   - moderate: 0.25 <= score < 0.5
//   - dirty: 0.5 <= score < 0.75
//   - severe: score >= 0.75
func Band(score float64) string {
	switch {
	case score < cleanUpper:
		return BandClean
	case score < moderateUpper:
		return BandModerate
	case score < dirtyUpper:
		return BandDirty
	default:
		return BandSevere
	}
}
