package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	answerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsassist_answer_attempts_total",
			Help: "Generation attempts by outcome (rows, empty, model_error, extract_error, guardrail, execution_error).",
		},
		[]string{"outcome"},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsassist_answers_total",
			Help: "Answered questions by result (answered, exhausted, summarize_error, canceled).",
		},
		[]string{"result"},
	)
	answerAttemptsPerQuestion = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsassist_answer_attempts_per_question",
			Help:    "Number of attempts spent per answered question.",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsassist_query_duration_seconds",
			Help:    "Query engine latency by backend and terminal state.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend", "state"},
	)
	schemaEnrichmentColumns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsassist_schema_enrichment_columns",
			Help: "Enrichment columns fetched, by status (ok, failed).",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		answerAttemptsTotal,
		answersTotal,
		answerAttemptsPerQuestion,
		queryDurationSeconds,
		schemaEnrichmentColumns,
	)
}

func ObserveAttempt(outcome string) {
	answerAttemptsTotal.WithLabelValues(outcome).Inc()
}

func ObserveAnswer(result string, attempts int) {
	answersTotal.WithLabelValues(result).Inc()
	if attempts > 0 {
		answerAttemptsPerQuestion.Observe(float64(attempts))
	}
}

func ObserveQuery(backend, state string, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(backend, state).Observe(elapsed.Seconds())
}

func ObserveEnrichmentColumn(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	schemaEnrichmentColumns.WithLabelValues(status).Inc()
}
