package dirtiness

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	seed := Seed()
	require.Len(t, seed, 4)
	require.NoError(t, Validate(seed))
	assert.Equal(t, Observation{Lat: 13.0418, Lng: 80.2337, Score: 0.90}, seed[0])
}

func TestValidate(t *testing.T) {
	assert.True(t, errors.Is(Validate(nil), ErrNoObservations))

	err := Validate([]Observation{
		{Lat: 91, Lng: 0, Score: 0.5},
		{Lat: 0, Lng: -181, Score: 0.5},
		{Lat: 0, Lng: 0, Score: math.NaN()},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "observation[0].lat")
	assert.Contains(t, err.Error(), "observation[1].lng")
	assert.Contains(t, err.Error(), "observation[2].score")

	assert.NoError(t, Validate([]Observation{{Lat: -90, Lng: 180, Score: 0}, {Lat: 90, Lng: -180, Score: 1}}))
}

func TestBand(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, BandClean},
		{0.2499, BandClean},
		{0.25, BandModerate},
		{0.4999, BandModerate},
		{0.5, BandDirty},
		{0.7499, BandDirty},
		{0.75, BandSevere},
		{1, BandSevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Band(tt.score), "score %v", tt.score)
	}
}
