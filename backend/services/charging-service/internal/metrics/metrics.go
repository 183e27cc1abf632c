// Package metrics exposes Prometheus collectors for the charging lifecycle.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chargeway"

// Recorder groups the service collectors.
type Recorder struct {
	sessions     *prometheus.CounterVec
	reservations *prometheus.CounterVec
	releases     prometheus.Counter
	timers       prometheus.Gauge
	subscribers  prometheus.Gauge
	frames       *prometheus.CounterVec
	rateLimited  prometheus.Counter
	effectErrors *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
// Collectors already registered are reused.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charging_sessions_total",
			Help:      "Charging session transitions by event",
		}, []string{"event"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_reservations_total",
			Help:      "Connector reservation attempts by result",
		}, []string{"result"}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_releases_total",
			Help:      "Connector ports returned to their pool",
		}),
		timers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_timers",
			Help:      "Running per-ticket progress timers",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_subscribers",
			Help:      "Connected live progress subscribers",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_frames_total",
			Help:      "Frames delivered to live subscribers by type",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		effectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed",
		}, []string{"effect"}),
	}

	r.sessions = register(reg, r.sessions)
	r.reservations = register(reg, r.reservations)
	r.releases = register(reg, r.releases)
	r.timers = register(reg, r.timers)
	r.subscribers = register(reg, r.subscribers)
	r.frames = register(reg, r.frames)
	r.rateLimited = register(reg, r.rateLimited)
	r.effectErrors = register(reg, r.effectErrors)
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SessionEvent counts requested, started, completed and cancelled sessions.
func (r *Recorder) SessionEvent(event string) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(event).Inc()
}

// Reservation counts a reservation attempt outcome.
func (r *Recorder) Reservation(result string) {
	if r == nil {
		return
	}
	r.reservations.WithLabelValues(result).Inc()
}

// Released counts a returned port.
func (r *Recorder) Released() {
	if r == nil {
		return
	}
	r.releases.Inc()
}

// SetTimers reports the number of running timers.
func (r *Recorder) SetTimers(n int) {
	if r == nil {
		return
	}
	r.timers.Set(float64(n))
}

// SetSubscribers reports the number of connected subscribers.
func (r *Recorder) SetSubscribers(n int) {
	if r == nil {
		return
	}
	r.subscribers.Set(float64(n))
}

// FrameSent counts a delivered frame.
func (r *Recorder) FrameSent(frameType string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(frameType).Inc()
}

// RateLimited counts a rejected request.
func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// EffectFailed counts a failed best-effort side effect.
func (r *Recorder) EffectFailed(name string) {
	if r == nil {
		return
	}
	r.effectErrors.WithLabelValues(name).Inc()
}
