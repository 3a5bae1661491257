package intercept

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks observer throughput counters.
type Metrics struct {
	requestsObserved  prometheus.Counter
	responsesObserved prometheus.Counter
	filtered          prometheus.Counter
	parseFailures     prometheus.Counter
	candidatesEmitted prometheus.Counter
}

var defaultMetrics = &Metrics{
	requestsObserved: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "observer_requests_total",
		Help:      "Outbound requests seen by the interception port.",
	}),
	responsesObserved: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "observer_responses_total",
		Help:      "Responses seen by the interception port.",
	}),
	filtered: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "observer_filtered_total",
		Help:      "Responses dropped by the pre-filter before JSON parsing.",
	}),
	parseFailures: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "observer_parse_failures_total",
		Help:      "Bodies that passed the filter but were not valid JSON.",
	}),
	candidatesEmitted: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gitgrind",
		Name:      "observer_candidates_total",
		Help:      "Candidate events emitted to the bus.",
	}),
}
