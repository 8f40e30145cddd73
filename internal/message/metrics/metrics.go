// Package metrics provides observability for the message module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks message creation and generation usage.
type Metrics struct {
	// Messages persisted, by role
	MessagesCreated *prometheus.CounterVec

	// Tokens consumed by assistant completions
	TokensUsed prometheus.Counter

	// Completion processing time reported by the backend
	ProcessingTime prometheus.Histogram

	// Sends rejected by the hourly rate limit or the daily quota
	LimitRejections *prometheus.CounterVec
}

// New creates a Metrics instance with all message module metrics registered.
func New() *Metrics {
	return &Metrics{
		MessagesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ali_messages_created_total",
			Help: "Total messages persisted by role",
		}, []string{"role"}),

		TokensUsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ali_message_tokens_used_total",
			Help: "Total tokens consumed by assistant completions",
		}),

		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ali_message_processing_duration_seconds",
			Help:    "Completion processing time reported by the backend",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		LimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ali_message_limit_rejections_total",
			Help: "Message sends rejected by usage limits",
		}, []string{"limit"}), // limit: "rate", "quota"
	}
}

// IncrementCreated records a persisted message.
func (m *Metrics) IncrementCreated(role string) {
	if m != nil {
		m.MessagesCreated.WithLabelValues(role).Inc()
	}
}

// ObserveCompletion records the usage of one assistant completion.
func (m *Metrics) ObserveCompletion(tokensUsed int, processingSeconds float64) {
	if m != nil {
		m.TokensUsed.Add(float64(tokensUsed))
		m.ProcessingTime.Observe(processingSeconds)
	}
}

// IncrementLimitRejection records a send rejected by a usage limit.
func (m *Metrics) IncrementLimitRejection(limit string) {
	if m != nil {
		m.LimitRejections.WithLabelValues(limit).Inc()
	}
}
