package dirtiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_Swap(t *testing.T) {
	first, err := New(Seed())
	require.NoError(t, err)
	second, err := New([]Observation{{Lat: 13.0418, Lng: 80.2337, Score: 0.1}})
	require.NoError(t, err)

	h := NewHolder(first)
	assert.Same(t, first, h.Load())
	assert.InDelta(t, 0.90, h.Load().Index(13.0418, 80.2337), 1e-9)

	prev := h.Swap(second)
	assert.Same(t, first, prev)
	assert.InDelta(t, 0.1, h.Load().Index(13.0418, 80.2337), 1e-9)
}

func TestHolder_SwapNilIgnored(t *testing.T) {
	e, err := New(Seed())
	require.NoError(t, err)

	h := NewHolder(e)
	assert.Same(t, e, h.Swap(nil))
	assert.Same(t, e, h.Load())
}
