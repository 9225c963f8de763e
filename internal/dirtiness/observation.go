package dirtiness

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoObservations is returned when an estimator is built from an empty
// observation set.
var ErrNoObservations = eris.New("dirtiness: observation set is empty")

// Observation is a single geotagged dirtiness sample.
type Observation struct {
	Lat   float64 `json:"lat" yaml:"lat"`
	Lng   float64 `json:"lng" yaml:"lng"`
	Score float64 `json:"score" yaml:"score"`
}

// Seed returns the default observation set used when no data exists yet:
// four Chennai localities with fixed scores.
func Seed() []Observation {
	return []Observation{
		{Lat: 13.0418, Lng: 80.2337, Score: 0.90}, // T. Nagar
		{Lat: 13.0860, Lng: 80.2101, Score: 0.70}, // Anna Nagar
		{Lat: 12.9791, Lng: 80.2209, Score: 0.50}, // Velachery
		{Lat: 13.0067, Lng: 80.2550, Score: 0.60}, // Adyar
	}
}

// Validate range-checks an observation set. The estimator itself never calls
// it; loaders at the I/O boundary do.
func Validate(obs []Observation) error {
	if len(obs) == 0 {
		return ErrNoObservations
	}

	var errs []string
	for i, o := range obs {
		if !inRange(o.Lat, -90, 90) {
			errs = append(errs, fmt.Sprintf("observation[%d].lat %v out of range [-90,90]", i, o.Lat))
		}
		if !inRange(o.Lng, -180, 180) {
			errs = append(errs, fmt.Sprintf("observation[%d].lng %v out of range [-180,180]", i, o.Lng))
		}
		if !inRange(o.Score, 0, 1) {
			errs = append(errs, fmt.Sprintf("observation[%d].score %v out of range [0,1]", i, o.Score))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("dirtiness: invalid observations: %s", strings.Join(errs, "; "))
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
