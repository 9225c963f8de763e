// Package dirtiness estimates a continuous dirtiness score over the map from
// sparse geotagged samples using k-nearest-neighbor inverse-distance weighting.
package dirtiness

import (
	"cmp"
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cleancredit/internal/geo"
)

// Policy defaults. They are not derived from the data.
const (
	DefaultK               = 3
	DefaultNearThresholdKM = 0.25
	DefaultFallbackScore   = 0.5
)

// Option configures an Estimator.
type Option func(*Estimator)

// WithK sets how many nearest neighbors are blended.
func WithK(k int) Option {
	return func(e *Estimator) {
		e.k = k
	}
}

// WithNearThreshold sets the distance (km) below which the nearest sample's
// score is returned directly.
func WithNearThreshold(km float64) Option {
	return func(e *Estimator) {
		e.nearThresholdKM = km
	}
}

// WithEpsilonKM sets the offset (km) added to every haversine distance.
// Zero lets a query at a sample produce an infinite weight, which resolves
// to the fallback score unless the near threshold catches it first.
func WithEpsilonKM(km float64) Option {
	return func(e *Estimator) {
		e.epsilonKM = km
	}
}

// WithFallbackScore sets the score returned when the weight sum degenerates.
func WithFallbackScore(score float64) Option {
	return func(e *Estimator) {
		e.fallbackScore = score
	}
}

// Estimator answers dirtiness queries from a fixed observation set. It is
// immutable after construction and safe for concurrent use.
type Estimator struct {
	obs             []Observation
	k               int
	nearThresholdKM float64
	epsilonKM       float64
	fallbackScore   float64
}

// Neighbor is one observation selected for a query, with its distance.
type Neighbor struct {
	Observation
	DistanceKM float64 `json:"distance_km"`
}

// Estimate is the detailed result of a query.
type Estimate struct {
	Score     float64    `json:"score"`
	NearestKM float64    `json:"nearest_km"`
	Shortcut  bool       `json:"shortcut"`
	Neighbors []Neighbor `json:"neighbors"`
}

// New creates an Estimator over a copy of obs. An empty set is an error.
func New(obs []Observation, opts ...Option) (*Estimator, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}

	e := &Estimator{
		obs:             slices.Clone(obs),
		k:               DefaultK,
		nearThresholdKM: DefaultNearThresholdKM,
		epsilonKM:       geo.DistanceEpsilonKM,
		fallbackScore:   DefaultFallbackScore,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.k < 1 {
		return nil, eris.Errorf("dirtiness: k must be >= 1 (got %d)", e.k)
	}
	if e.nearThresholdKM < 0 || math.IsNaN(e.nearThresholdKM) {
		return nil, eris.Errorf("dirtiness: near threshold must be >= 0 (got %v)", e.nearThresholdKM)
	}
	if e.epsilonKM < 0 || math.IsNaN(e.epsilonKM) || math.IsInf(e.epsilonKM, 0) {
		return nil, eris.Errorf("dirtiness: epsilon must be a finite value >= 0 (got %v)", e.epsilonKM)
	}
	if !inRange(e.fallbackScore, 0, 1) {
		return nil, eris.Errorf("dirtiness: fallback score must be in [0,1] (got %v)", e.fallbackScore)
	}

	return e, nil
}

// Index returns the dirtiness score in [0,1] at the given coordinate.
func (e *Estimator) Index(lat, lon float64) float64 {
	return e.Estimate(lat, lon).Score
}

// Estimate returns the score at the given coordinate along with the
// neighbors that produced it.
func (e *Estimator) Estimate(lat, lon float64) Estimate {
	neighbors := make([]Neighbor, len(e.obs))
	for i, o := range e.obs {
		neighbors[i] = Neighbor{Observation: o, DistanceKM: geo.HaversineKM(lat, lon, o.Lat, o.Lng) + e.epsilonKM}
	}

	slices.SortStableFunc(neighbors, func(a, b Neighbor) int {
		return cmp.Compare(a.DistanceKM, b.DistanceKM)
	})
	neighbors = neighbors[:min(e.k, len(neighbors))]

	est := Estimate{NearestKM: neighbors[0].DistanceKM, Neighbors: neighbors}

	if neighbors[0].DistanceKM < e.nearThresholdKM {
		est.Shortcut = true
		est.Score = e.clamp(neighbors[0].Score)
		return est
	}

	var num, den float64
	for _, n := range neighbors {
		w := 1 / (n.DistanceKM * n.DistanceKM)
		num += w * n.Score
		den += w
	}

	if den == 0 || math.IsInf(den, 0) || math.IsNaN(den) {
		est.Score = e.fallbackScore
		return est
	}

	est.Score = e.clamp(num / den)
	return est
}

// Observations returns a copy of the raw stored observations.
func (e *Estimator) Observations() []Observation {
	return slices.Clone(e.obs)
}

// Len returns the number of stored observations.
func (e *Estimator) Len() int {
	return len(e.obs)
}

// clamp bounds v to [0,1]. NaN maps to the fallback score.
func (e *Estimator) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return e.fallbackScore
	}
	return math.Max(0, math.Min(1, v))
}
