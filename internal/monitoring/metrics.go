package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reservationOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stand_reservation_operations_total",
			Help: "Reserve and cancel calls by outcome",
		},
		[]string{"operation", "outcome"},
	)

	settlementOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stand_settlement_operations_total",
			Help: "Proof submissions, decisions and overrides by outcome",
		},
		[]string{"operation", "outcome"},
	)

	sweptObligations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stand_sweeper_obligations_total",
			Help: "Obligations handled by the reclamation sweeper",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stand_sweeper_run_duration_seconds",
			Help:    "Duration of reclamation sweeper runs",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
)

// TrackReservation counts a reservation engine call. Outcome is "ok" or an
// error kind.
func TrackReservation(operation, outcome string) {
	reservationOperations.WithLabelValues(operation, outcome).Inc()
}

func TrackSettlement(operation, outcome string) {
	settlementOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackSweep records one sweeper run.
func TrackSweep(expired, skipped, failed int, d time.Duration) {
	sweptObligations.WithLabelValues("expired").Add(float64(expired))
	sweptObligations.WithLabelValues("skipped").Add(float64(skipped))
	sweptObligations.WithLabelValues("failed").Add(float64(failed))
	sweepDuration.Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
