// Package metrics defines Prometheus instrumentation for the decision
// pipeline and serves it over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision Pipeline Metrics
var (
	// Decisions produced, labeled by final (post-gate) action
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradequorum_decisions_total",
		Help: "Total decisions produced, by final action",
	}, []string{"action"})

	// Risk overrides applied by the constraint gate
	GateOverridesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradequorum_gate_overrides_total",
		Help: "Constraint gate overrides applied, by reason",
	}, []string{"reason"})

	// Producer opinion failures
	ProducerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradequorum_producer_failures_total",
		Help: "Failed producer opinions, by producer",
	}, []string{"producer"})

	// End-to-end decision latency
	DecisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradequorum_decision_latency_ms",
		Help:    "Decision pipeline latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	// Synthesized overall score of the last decision
	OverallScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradequorum_overall_score",
		Help: "Overall score of the most recent synthesized decision (0-100)",
	})
)

// Risk Analytics Metrics
var (
	// Composite risk score of the last report
	CompositeRiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradequorum_composite_risk_score",
		Help: "Composite portfolio risk score (0-100)",
	})

	// Risk reports generated, by overall level
	RiskReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradequorum_risk_reports_total",
		Help: "Risk reports generated, by overall level",
	}, []string{"level"})

	// Portfolio value used for the last sizing
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradequorum_portfolio_value",
		Help: "Portfolio total value in USD at last evaluation",
	})

	// Position sizings computed, by limiting constraint
	SizingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradequorum_sizings_total",
		Help: "Position sizings computed, by limiting constraint",
	}, []string{"constraint"})
)
