package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlserve",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Model store operations by op and result",
		},
		[]string{"op", "result"},
	)

	storedModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mlserve",
			Subsystem: "store",
			Name:      "models",
			Help:      "Number of models with a metadata record",
		},
	)
)

func init() {
	prometheus.MustRegister(storeOpsTotal, storedModels)
}
