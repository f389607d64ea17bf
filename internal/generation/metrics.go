package generation

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "sessions_total",
			Help:      "Generation sessions by terminal reason",
		},
		[]string{"reason"},
	)

	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens decoded after the prompt",
		},
	)

	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of generation sessions",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	tokensPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "tokens_per_second",
			Help:      "Throughput of the most recent session",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsTotal, tokensTotal, sessionDuration, tokensPerSecond)
}

func observe(res Result) {
	sessionsTotal.WithLabelValues(string(res.Reason)).Inc()
	tokensTotal.Add(float64(res.Decoded))
	sessionDuration.Observe(res.Elapsed.Seconds())
	if res.Reason != ReasonFailed {
		tokensPerSecond.Set(res.TokensPerSecond())
	}
}
