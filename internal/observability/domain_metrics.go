package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrachat_questions_total",
			Help: "Total number of questions processed by the pipeline.",
		},
	)
	exitShortCircuitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrachat_exit_short_circuits_total",
			Help: "Total number of exit phrases handled without invoking the pipeline.",
		},
	)
	translationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrachat_translation_failures_total",
			Help: "Total number of questions whose SQL translation or execution failed.",
		},
	)
	synthesisFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrachat_synthesis_failures_total",
			Help: "Total number of answer synthesis calls that fell back to the apology answer.",
		},
	)
	questionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "migrachat_question_latency_seconds",
			Help:    "End-to-end latency of a processed question in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
	)
	databaseConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "migrachat_database_connected",
			Help: "Whether the schema connector currently holds a live database handle (1 or 0).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		exitShortCircuitsTotal,
		translationFailuresTotal,
		synthesisFailuresTotal,
		questionLatencySeconds,
		databaseConnected,
	)
}

func ObserveQuestion(translationFailed, synthesisFailed bool, elapsed time.Duration) {
	questionsTotal.Inc()
	if translationFailed {
		translationFailuresTotal.Inc()
	}
	if synthesisFailed {
		synthesisFailuresTotal.Inc()
	}
	questionLatencySeconds.Observe(elapsed.Seconds())
}

func IncrementExitShortCircuit() {
	exitShortCircuitsTotal.Inc()
}

func SetDatabaseConnected(connected bool) {
	if connected {
		databaseConnected.Set(1)
		return
	}
	databaseConnected.Set(0)
}
