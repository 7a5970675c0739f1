package coordinator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	keygenPhaseHist    *prometheus.HistogramVec
	keygenTotal        *prometheus.CounterVec
	recoveryTotal      *prometheus.CounterVec
	shareRejectedTotal prometheus.Counter
	partnersOnline     prometheus.Gauge
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		keygenPhaseHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mpc",
			Subsystem: "keygen",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each key generation phase",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"phase"})
		keygenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpc",
			Subsystem: "keygen",
			Name:      "total",
			Help:      "Key generation rounds by result",
		}, []string{"result"})
		recoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mpc",
			Subsystem: "recovery",
			Name:      "total",
			Help:      "Key recovery attempts by result",
		}, []string{"result"})
		shareRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mpc",
			Name:      "share_rejected_total",
			Help:      "Partner shares that failed commitment verification",
		})
		partnersOnline = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "mpc",
			Name:      "partners_online",
			Help:      "Party partners with a reachable peer",
		})
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
