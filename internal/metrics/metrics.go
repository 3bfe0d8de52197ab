// Package metrics exposes Prometheus collectors for ingestion, summarization,
// commit processing and GitHub rate limiting.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type collectors struct {
	once sync.Once

	ingestionRuns     *prometheus.CounterVec
	ingestionDuration prometheus.Histogram
	stageDuration     *prometheus.HistogramVec

	summaries      *prometheus.CounterVec
	commitsStored  prometheus.Counter
	codeRecords    prometheus.Counter
	embedErrors    prometheus.Counter
	rateLimitWaits prometheus.Counter
	rateLimitSleep prometheus.Counter

	questions prometheus.Counter
}

var m collectors

func (c *collectors) init() {
	c.once.Do(func() {
		c.ingestionRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dionysus_ingestion_runs_total",
			Help: "Ingestion runs by terminal status.",
		}, []string{"status"})
		c.ingestionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dionysus_ingestion_seconds",
			Help:    "Wall time of a full ingestion run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		})
		c.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dionysus_ingestion_stage_seconds",
			Help:    "Duration of individual ingestion stages.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"})

		c.summaries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dionysus_summaries_total",
			Help: "Summaries produced, by kind (file, commit) and source (ai, fallback, message).",
		}, []string{"kind", "source"})
		c.commitsStored = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_commits_stored_total",
			Help: "Commit records inserted.",
		})
		c.codeRecords = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_code_records_stored_total",
			Help: "Code chunk records inserted.",
		})
		c.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_embedding_errors_total",
			Help: "Embeddings rejected or failed after retries.",
		})
		c.rateLimitWaits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_github_rate_limit_waits_total",
			Help: "Times a GitHub call paused for the rate limit reset.",
		})
		c.rateLimitSleep = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_github_rate_limit_sleep_seconds_total",
			Help: "Seconds spent waiting for GitHub rate limit resets.",
		})
		c.questions = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dionysus_questions_total",
			Help: "Questions answered.",
		})

		prometheus.MustRegister(
			c.ingestionRuns, c.ingestionDuration, c.stageDuration,
			c.summaries, c.commitsStored, c.codeRecords, c.embedErrors,
			c.rateLimitWaits, c.rateLimitSleep,
			c.questions,
		)
	})
}

// Handler serves the registered collectors in the Prometheus text format.
func Handler() http.Handler {
	m.init()
	return promhttp.Handler()
}

// RecordIngestion counts a finished ingestion run.
func RecordIngestion(status string, d time.Duration) {
	m.init()
	m.ingestionRuns.WithLabelValues(status).Inc()
	m.ingestionDuration.Observe(d.Seconds())
}

// ObserveStage records how long a named ingestion stage took.
func ObserveStage(stage string, d time.Duration) {
	m.init()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSummary counts one summary of kind ("file" or "commit") from source
// ("ai", "fallback" or "message").
func RecordSummary(kind, source string) {
	m.init()
	m.summaries.WithLabelValues(kind, source).Inc()
}

func AddCommitsStored(n int) {
	m.init()
	m.commitsStored.Add(float64(n))
}

func AddCodeRecords(n int) {
	m.init()
	m.codeRecords.Add(float64(n))
}

func RecordEmbedError() {
	m.init()
	m.embedErrors.Inc()
}

// RecordRateLimitWait counts a pause for the GitHub rate limit window.
func RecordRateLimitWait(d time.Duration) {
	m.init()
	m.rateLimitWaits.Inc()
	m.rateLimitSleep.Add(d.Seconds())
}

func RecordQuestion() {
	m.init()
	m.questions.Inc()
}
