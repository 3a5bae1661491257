package ipc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "ipc_messages_total",
		Help:      "Envelope messages handled, by type and outcome.",
	}, []string{"type", "outcome"})

	metricWSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gitgrind",
		Name:      "ipc_ws_clients",
		Help:      "Connected push-state WebSocket clients.",
	})
)
