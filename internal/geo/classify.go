// Package geo provides spherical distance math and proximity classification
// for geotagged dirtiness samples.
package geo

// Proximity classification constants.
const (
	ProximityAtSample = "at_sample"
	ProximityNear     = "near"
	ProximityLocal    = "local"
	ProximityRemote   = "remote"
)

// Distance thresholds for classification (kilometers).
const (
	nearThreshold  = 2.0
	localThreshold = 10.0
)

// ClassifyProximity describes how close a query point is to its nearest
// known sample. atSample is the estimator's own verdict (its shortcut fired),
// so the label always agrees with the configured near threshold.
// Rules:
//   - at_sample: atSample is set
//   - near: nearest sample <= 2km
//   - local: nearest sample <= 10km
//   - remote: anything further
func ClassifyProximity(nearestKM float64, atSample bool) string {
	switch {
	case atSample:
		return ProximityAtSample
	case nearestKM <= nearThreshold:
		return ProximityNear
	case nearestKM <= localThreshold:
		return ProximityLocal
	default:
		return ProximityRemote
	}
}
