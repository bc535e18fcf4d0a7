package chiru

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chiruEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chiru_gateway_events_total",
			Help: "Total number of gateway frames received, per shard",
		},
		[]string{"shard_id"},
	)

	chiruDispatchEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chiru_dispatch_events_total",
			Help: "Total number of dispatch events received, per shard and event type",
		},
		[]string{"shard_id", "event_type"},
	)

	chiruVoidableDroppedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chiru_voidable_events_dropped_total",
			Help: "Voidable gateway events dropped due to a full event channel",
		},
		[]string{"shard_id"},
	)

	chiruGatewayLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chiru_gateway_latency_seconds",
			Help: "Gateway latency in seconds, measured by heartbeat round trip",
		},
		[]string{"shard_id"},
	)

	chiruHandlersInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chiru_handler_tasks_inflight",
			Help: "Number of handler tasks currently running in the dispatcher",
		},
	)

	chiruHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chiru_handler_errors_total",
			Help: "Handler failures caught at the dispatch unit boundary",
		},
		[]string{"event_type"},
	)
)
