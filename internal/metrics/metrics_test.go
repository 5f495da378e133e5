package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestMetrics_Record checks that the recorders update the registered instruments.
func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.Ingested("created-alarm")
	m.Ingested("created-alarm")
	m.IngestFailed("decode")
	m.Acknowledged(3)
	m.ShelveRequested("shelved")
	m.Notified(KindChanges, time.Now(), 2)
	m.Notified(KindBroadcast, time.Now(), 0)
	m.SetObservers(4)
	m.SetAlarms(10)
	m.SetCounters(map[string]int{"weather": 2, "antennas": 0})
	m.UnshelveExpired(1)

	require.InDelta(t, 2, testutil.ToFloat64(m.ingested.WithLabelValues("created-alarm")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.ingestErrors.WithLabelValues("decode")), 0)
	require.InDelta(t, 3, testutil.ToFloat64(m.acknowledged), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.shelveRequests.WithLabelValues("shelved")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.notifications.WithLabelValues(KindChanges)), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.deliveryErrors.WithLabelValues(KindChanges)), 0)
	require.InDelta(t, 0, testutil.ToFloat64(m.deliveryErrors.WithLabelValues(KindBroadcast)), 0)
	require.InDelta(t, 4, testutil.ToFloat64(m.observers), 0)
	require.InDelta(t, 10, testutil.ToFloat64(m.alarms), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.activeByView.WithLabelValues("weather")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.unshelveExpired), 0)
}

// TestMetrics_NilSafe checks that a nil Metrics can be used everywhere.
func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	require.NotPanics(t, func() {
		m.Ingested("created-alarm")
		m.IngestFailed("decode")
		m.Acknowledged(1)
		m.ShelveRequested("shelved")
		m.Notified(KindChanges, time.Now(), 1)
		m.SetObservers(1)
		m.SetAlarms(1)
		m.SetCounters(map[string]int{"weather": 1})
		m.UnshelveExpired(1)
	})
}
