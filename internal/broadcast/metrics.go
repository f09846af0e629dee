package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcast",
		Name:      "broadcasts_total",
		Help:      "Broadcast requests by result (completed, blank, busy).",
	}, []string{"result"})

	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatcast",
		Name:      "dispatch_outcomes_total",
		Help:      "Per-target dispatch outcomes.",
	}, []string{"target", "status", "error_kind"})

	metricDispatchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatcast",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent injecting and submitting into one target.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"target"})

	metricInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatcast",
		Name:      "broadcast_in_progress",
		Help:      "1 while a dispatch cycle is running.",
	})
)

func observe(res *Result) {
	for _, o := range res.Outcomes {
		metricOutcomes.WithLabelValues(o.TargetID, string(o.Status), string(o.ErrorKind)).Inc()
		if o.Attempted() {
			metricDispatchSeconds.WithLabelValues(o.TargetID).Observe(o.Duration.Seconds())
		}
	}
}
