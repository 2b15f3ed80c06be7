package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcome counters. Label values are drawn from small fixed sets to
// keep cardinality bounded.
var (
	// inboundProcessed counts inbound webhook processing outcomes:
	// processed, processing_error, unknown_sender.
	inboundProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_inbound_processed_total",
			Help: "Total inbound messages by processing outcome.",
		},
		[]string{"outcome"},
	)

	// outboundSends counts delivery attempts by terminal result: sent, failed.
	outboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_outbound_sends_total",
			Help: "Total outbound delivery attempts by terminal status.",
		},
		[]string{"status"},
	)

	// sweepRedeliveries counts sweep re-delivery results: sent, failed.
	sweepRedeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sweep_redeliveries_total",
			Help: "Total failed-send sweep re-delivery attempts by result.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(inboundProcessed, outboundSends, sweepRedeliveries)
}
