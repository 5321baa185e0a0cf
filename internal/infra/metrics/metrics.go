package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification flow. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Join requests by how the automatic step ended
	JoinRequests *prometheus.CounterVec

	// Terminal outcomes by outcome and the signal that drove them
	Outcomes *prometheus.CounterVec

	// Roster reads by snapshot and result
	RosterQueryLatency *prometheus.HistogramVec

	PendingSessions prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JoinRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_join_requests_total",
			Help: "Join requests by result of the automatic check",
		}, []string{"result"}), // result: "approved", "awaiting_dni", "undeliverable", "aborted", "duplicate", "deferred"

		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_verification_outcomes_total",
			Help: "Terminal verification outcomes by outcome and deciding signal",
		}, []string{"outcome", "signal"}),

		RosterQueryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_roster_query_duration_seconds",
			Help:    "Duration of roster snapshot reads",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"snapshot", "result"}),

		PendingSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_pending_sessions",
			Help: "Join requests waiting for the requester's DNI",
		}),
	}
}

func (m *Metrics) IncJoinRequest(result string) {
	if m != nil {
		m.JoinRequests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncOutcome(outcome, signal string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome, signal).Inc()
	}
}

// ObserveRosterQuery satisfies roster.Observer.
func (m *Metrics) ObserveRosterQuery(snapshot string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RosterQueryLatency.WithLabelValues(snapshot, result).Observe(d.Seconds())
}

func (m *Metrics) SetPendingSessions(n int) {
	if m != nil {
		m.PendingSessions.Set(float64(n))
	}
}
