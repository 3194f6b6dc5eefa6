package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/inductor/internal/model"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inductor_messages_total",
			Help: "Total number of accepted messages by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	activeWork = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inductor_active_work",
			Help: "Number of messages currently being processed.",
		},
	)

	queueWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inductor_queue_wait_seconds",
			Help:    "Time between producer enqueue and worker dequeue.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
	)

	publishDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inductor_publish_duration_seconds",
			Help:    "Latency of response publishing.",
			Buckets: prometheus.DefBuckets,
		},
	)

	processDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inductor_process_duration_seconds",
			Help:    "Time from acceptance to completion of a message.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(messagesTotal)
	prometheus.MustRegister(activeWork)
	prometheus.MustRegister(queueWaitSeconds)
	prometheus.MustRegister(publishDurationSeconds)
	prometheus.MustRegister(processDurationSeconds)
}

// typeLabel bounds label cardinality: anything that is not a known kind is
// reported as "unknown".
func typeLabel(msgType string) string {
	if k, err := model.ParseKind(msgType); err == nil {
		return k.String()
	}
	return "unknown"
}
