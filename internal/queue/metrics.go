package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess     = "success"
	resultClientError = "client_error"
	resultFailure     = "failure"
	resultCircuitOpen = "circuit_open"
	resultCanceled    = "canceled"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_queue_tasks_total",
		Help: "Tasks completed by the request queue, by endpoint and result.",
	}, []string{"endpoint", "result"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_queue_retries_total",
		Help: "Backoff retries scheduled by the request queue.",
	}, []string{"endpoint"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_queue_task_duration_seconds",
		Help:    "Wall time of a task including retries and queueing.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "billing_queue_breaker_state",
		Help: "Circuit breaker state per endpoint (0=closed, 2=open).",
	}, []string{"endpoint"})

	waitingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_queue_waiting",
		Help: "Attempts waiting for a concurrency slot.",
	})

	runningTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_queue_running",
		Help: "Attempts currently executing.",
	})
)
