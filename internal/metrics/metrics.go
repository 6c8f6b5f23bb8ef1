// Package metrics defines Prometheus metrics for Talon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talon_analyses_total",
			Help: "Total analyses run, by tenant and final status",
		},
		[]string{"tenant", "status"},
	)

	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talon_analysis_duration_seconds",
			Help:    "End-to-end analysis pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CyclesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talon_cycles_found_total",
			Help: "Total simple cycles enumerated across all analyses",
		},
	)

	SuspiciousCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talon_suspicious_cycles_total",
			Help: "Total cycles flagged suspicious across all analyses",
		},
	)

	HighRiskNodes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talon_high_risk_nodes_total",
			Help: "Total participants flagged high risk across all analyses",
		},
	)

	PolicyMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talon_policy_matches_total",
			Help: "Total alert-policy matches, by policy id",
		},
		[]string{"policy"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talon_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	GraphNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talon_graph_nodes",
			Help: "Participant count of the most recently analyzed graph",
		},
	)

	GraphEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talon_graph_edges",
			Help: "Loan count of the most recently analyzed graph",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysesTotal, AnalysisDuration,
		CyclesFound, SuspiciousCycles, HighRiskNodes, PolicyMatches,
		RequestsTotal, RequestDuration,
		GraphNodes, GraphEdges,
	)
}
