package reward

// Detection is one object reported by the external detector.
type Detection struct {
	Box        [4]int  `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Thresholds for aggregating detections into one classification.
const (
	recyclableRatioThreshold = 0.5
	emptyTrashConfidence     = 0.30
)

// ClassifyDetections aggregates detector labels into an overall class and a
// confidence. With no detections the result is Trash at 0.30. Otherwise the
// image is Recyclable when at least half the detections are recyclable.
func ClassifyDetections(ds []Detection) (Classification, float64) {
	if len(ds) == 0 {
		return Trash, emptyTrashConfidence
	}

	var hits int
	for _, d := range ds {
		if ParseClassification(d.Label) == Recyclable {
			hits++
		}
	}

	ratio := float64(hits) / float64(len(ds))
	if ratio >= recyclableRatioThreshold {
		return Recyclable, ratio
	}
	return Trash, 1 - ratio
}
