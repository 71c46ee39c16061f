package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Completions        prometheus.Counter
	CompletionFailures prometheus.Counter
	Analyses           prometheus.Counter
	RateLimited        prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			Completions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "completions_total",
				Help:      "Total chat completions returned to callers",
			}),
			CompletionFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "completion_failures_total",
				Help:      "Total chat completion calls that failed",
			}),
			Analyses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "analyses_total",
				Help:      "Total financial analysis calls",
			}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the per-tenant rate limiter",
			}),
		}
		prometheus.MustRegister(global.Completions, global.CompletionFailures, global.Analyses, global.RateLimited)
	})
	return global
}
