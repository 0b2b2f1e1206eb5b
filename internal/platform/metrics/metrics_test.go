package metrics

import (
	"testing"
	"time"

	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSweepCountsOutcomes(t *testing.T) {
	registry := NewRegistry()
	registry.ObserveSweep(ports.SweepStats{Closed: 2, Skipped: 1, Duration: 20 * time.Millisecond})
	registry.ObserveSweep(ports.SweepStats{Finalized: 1, Failed: 1})

	assert.Equal(t, float64(2), testutil.ToFloat64(registry.sweeps))
	assert.Equal(t, float64(2), testutil.ToFloat64(registry.transitions.WithLabelValues("closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.transitions.WithLabelValues("finalized")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.transitions.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.transitions.WithLabelValues("failed")))
}

func TestRelayCounters(t *testing.T) {
	registry := NewRegistry()
	registry.ObservePublished("proposal.closed", 3)
	registry.ObservePublishFailure("proposal.closed")

	assert.Equal(t, float64(3), testutil.ToFloat64(registry.published.WithLabelValues("proposal.closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.publishFailures.WithLabelValues("proposal.closed")))

	families, err := registry.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
