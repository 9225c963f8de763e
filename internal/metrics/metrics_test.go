package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ModelFailures.WithLabelValues("panic"))
	ModelFailures.WithLabelValues("panic").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ModelFailures.WithLabelValues("panic")))

	ObservationCount.Set(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(ObservationCount))
}
