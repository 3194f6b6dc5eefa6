package admission

import "github.com/prometheus/client_golang/prometheus"

var (
	dataDirFreeMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inductor_data_dir_free_megabytes",
			Help: "Free space on the data directory filesystem at the last admission check, in megabytes.",
		},
	)

	capacityHaltsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inductor_capacity_halts_total",
			Help: "Number of admission checks that found headroom below the configured minimum.",
		},
	)
)

func init() {
	prometheus.MustRegister(dataDirFreeMB)
	prometheus.MustRegister(capacityHaltsTotal)
}
