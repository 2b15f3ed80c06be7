package ai

import (
	"github.com/prometheus/client_golang/prometheus"
)

// fallbacksServed counts canned replies returned in place of generated ones,
// labeled by failure classification.
var fallbacksServed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_fallbacks_served_total",
		Help: "Canned fallback replies served by the safety layer, by failure classification.",
	},
	[]string{"class"},
)

func init() {
	prometheus.MustRegister(fallbacksServed)
}
