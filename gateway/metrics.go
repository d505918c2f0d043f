package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	connections prometheus.Gauge
	attaches    *prometheus.CounterVec
	framesIn    *prometheus.CounterVec
	framesOut   *prometheus.CounterVec
	opErrors    *prometheus.CounterVec
	dropped     prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket sessions.",
		}),
		attaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "attach_total",
			Help:      "Session attach attempts by result.",
		}, []string{"result"}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "frames_received_total",
			Help:      "Client frames by op.",
		}, []string{"op"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "frames_sent_total",
			Help:      "Server frames by op.",
		}, []string{"op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "op_errors_total",
			Help:      "Failed client ops by op and error kind.",
		}, []string{"op", "kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "gateway",
			Name:      "slow_consumers_dropped_total",
			Help:      "Connections closed because their send buffer filled up.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.attaches,
		m.framesIn,
		m.framesOut,
		m.opErrors,
		m.dropped,
		collectors.NewGoCollector(),
	)
	return m
}
