package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	// lookups counts read-through lookups by endpoint namespace and result (hit|miss).
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Read-through cache lookups by namespace and result.",
		},
		[]string{"namespace", "result"},
	)

	// invalidations counts prefix invalidations by endpoint namespace.
	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache prefix invalidations.",
		},
		[]string{"namespace"},
	)
)

func init() {
	prometheus.MustRegister(lookups, invalidations)
}
