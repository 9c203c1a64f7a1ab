package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "constellation"

// Metrics holds the engine's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	GraphNodes      prometheus.Gauge
	GraphEdges      prometheus.Gauge
	LLMRequests     *prometheus.CounterVec
	SearchRequests  *prometheus.CounterVec
	MaintenanceRuns *prometheus.CounterVec
	EntitiesAdded   *prometheus.CounterVec
	PassDuration    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		GraphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Number of entity nodes in the graph",
		}),
		GraphEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Number of edges in the graph",
		}),
		LLMRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Text-generation requests by outcome",
		}, []string{"outcome"}),
		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Semantic-memory search requests by outcome",
		}, []string{"outcome"}),
		MaintenanceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance task runs by task",
		}, []string{"task"}),
		EntitiesAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_added_total",
			Help:      "Entity occurrences recorded by extraction source",
		}, []string{"source"}),
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of periodic passes",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"pass"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetGraphSize(nodes, edges int) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
}

func (m *Metrics) LLMOutcome(outcome string) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SearchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MaintenanceRun(task string) {
	if m == nil {
		return
	}
	m.MaintenanceRuns.WithLabelValues(task).Inc()
}

func (m *Metrics) EntityAdded(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntitiesAdded.WithLabelValues(source).Add(float64(n))
}

// ObservePass records the time since start under pass.
func (m *Metrics) ObservePass(pass string, start time.Time) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}
