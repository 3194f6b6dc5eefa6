package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	receivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inductor_queue_received_total",
			Help: "Total number of messages received from the inbound queue.",
		},
	)

	redeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inductor_queue_redeliveries_total",
			Help: "Total number of unacknowledged messages pushed back for redelivery.",
		},
	)

	deadLettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inductor_queue_dead_letters_total",
			Help: "Total number of messages moved to the dead-letter list.",
		},
	)

	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inductor_responses_published_total",
			Help: "Total number of response publish attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(receivedTotal)
	prometheus.MustRegister(redeliveriesTotal)
	prometheus.MustRegister(deadLettersTotal)
	prometheus.MustRegister(publishedTotal)

	publishedTotal.WithLabelValues("ok")
	publishedTotal.WithLabelValues("error")
}
