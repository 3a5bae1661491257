package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gitgrind",
	Name:      "pushes_total",
	Help:      "Push attempts by outcome (success, error, skipped).",
}, []string{"outcome"})
