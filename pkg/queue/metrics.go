package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the queue's Prometheus instruments, shared by all pools.
type Metrics struct {
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	LLMCalls      prometheus.Counter
	CacheHits     prometheus.Counter
}

// NewMetrics registers the queue instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagic",
			Name:      "jobs_processed_total",
			Help:      "Jobs completed successfully, by kind.",
		}, []string{"kind"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engagic",
			Name:      "jobs_failed_total",
			Help:      "Job executions that returned an error, by kind.",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "engagic",
			Name:      "queue_depth",
			Help:      "Queue jobs by status.",
		}, []string{"status"}),
		LLMCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engagic",
			Name:      "llm_calls_total",
			Help:      "Summarisation calls issued to the LLM.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engagic",
			Name:      "cache_hits_total",
			Help:      "Summaries served from the content cache or canonical matter copy.",
		}),
	}
	reg.MustRegister(m.JobsProcessed, m.JobsFailed, m.QueueDepth, m.LLMCalls, m.CacheHits)
	return m
}
