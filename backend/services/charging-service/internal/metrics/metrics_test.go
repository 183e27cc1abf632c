package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.SessionEvent("started")
	r.SessionEvent("completed")
	r.SessionEvent("completed")
	r.Reservation("reserved")
	r.SetTimers(3)

	expected := `
# HELP chargeway_charging_sessions_total Charging session transitions by event
# TYPE chargeway_charging_sessions_total counter
chargeway_charging_sessions_total{event="completed"} 2
chargeway_charging_sessions_total{event="started"} 1
`
	require.NoError(t, testutil.CollectAndCompare(r.sessions, strings.NewReader(expected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reservations.WithLabelValues("reserved")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.timers))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.Released()
	second.Released()
	assert.Equal(t, 2.0, testutil.ToFloat64(second.releases))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SessionEvent("started")
		r.Reservation("reserved")
		r.Released()
		r.SetTimers(1)
		r.SetSubscribers(1)
		r.FrameSent("progress")
		r.RateLimited()
		r.EffectFailed("x")
	})
}
