package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("gl:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("gl:integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("gl:integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("gl:integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("gl:integrity")))
}

func TestAddUnbalanced(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddUnbalanced("ACME", 2)
	m.AddUnbalanced("ACME", 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.unbalanced.WithLabelValues("ACME")))

	var nilMetrics *Metrics
	nilMetrics.AddUnbalanced("ACME", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
