// Package metrics registers the Prometheus collectors for the webhook pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zapreply"

var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by guard disposition.",
		},
		[]string{"disposition"},
	)

	WebhookRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_rejected_total",
			Help:      "Requests answered without classification.",
		},
		[]string{"reason"}, // method_not_allowed, missing_config, panic
	)

	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Resolved replies by source.",
		},
		[]string{"source"},
	)

	SendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Send attempts by backend and result.",
		},
		[]string{"backend", "result"}, // result: delivered or an error category
	)

	ReplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_resolution_duration_seconds",
			Help:      "Time spent choosing the reply text.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of send backend calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	ProviderHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_healthy",
			Help:      "1 when the last generation provider health probe succeeded.",
		},
	)
)

func ObserveDisposition(disposition string) {
	WebhookEventsTotal.WithLabelValues(disposition).Inc()
}

func ObserveRejected(reason string) {
	WebhookRejectedTotal.WithLabelValues(reason).Inc()
}

func ObserveReply(source string, elapsed time.Duration) {
	RepliesTotal.WithLabelValues(source).Inc()
	ReplyDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func ObserveSend(backend string, result string, elapsed time.Duration) {
	SendAttemptsTotal.WithLabelValues(backend, result).Inc()
	SendDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func SetProviderHealthy(healthy bool) {
	if healthy {
		ProviderHealthy.Set(1)
		return
	}
	ProviderHealthy.Set(0)
}
