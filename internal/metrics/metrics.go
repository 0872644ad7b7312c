package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"

	DocumentAccepted  = "accepted"
	DocumentRetweet   = "retweet_routed"
	DocumentInvalid   = "invalid"
	DocumentSpam      = "spam"
	DocumentLanguage  = "language"
	DocumentDuplicate = "duplicate"

	StoryCreated  = "created"
	StoryExtended = "extended"
	StoryClosed   = "closed"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_runs_total",
			Help: "Orchestrator runs per key by outcome",
		},
		[]string{"key", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storify_run_duration_seconds",
			Help:    "Duration of one orchestrator run for a key",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"key"},
	)

	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_documents_total",
			Help: "Documents seen in fetch windows by outcome",
		},
		[]string{"key", "outcome"},
	)

	ClustersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_clusters_total",
			Help: "Clusters built per key",
		},
		[]string{"key"},
	)

	StoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_stories_total",
			Help: "Story lifecycle transitions per key",
		},
		[]string{"key", "transition"},
	)

	ActiveStories = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storify_active_stories",
			Help: "Active stories held in the state store after the last run",
		},
		[]string{"key"},
	)

	TasksPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_tasks_published_total",
			Help: "Async tasks published by name",
		},
		[]string{"task"},
	)

	TasksHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_tasks_handled_total",
			Help: "Async tasks consumed by name and outcome",
		},
		[]string{"task", "status"},
	)

	NSFWRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storify_nsfw_requests_total",
			Help: "Image scoring lookups by result",
		},
		[]string{"result"},
	)
)

// RecordRun records the outcome and latency of one key run.
func RecordRun(key string, elapsed time.Duration, err error) {
	status := RunStatusOK
	if err != nil {
		status = RunStatusFailed
	}
	RunsTotal.WithLabelValues(key, status).Inc()
	RunDuration.WithLabelValues(key).Observe(elapsed.Seconds())
}

func RecordDocuments(key, outcome string, n int) {
	if n <= 0 {
		return
	}
	DocumentsTotal.WithLabelValues(key, outcome).Add(float64(n))
}

func RecordStories(key, transition string, n int) {
	if n <= 0 {
		return
	}
	StoriesTotal.WithLabelValues(key, transition).Add(float64(n))
}
