package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_cycles_total",
		Help: "Billing cycles by outcome (completed, disabled, error).",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_cycle_duration_seconds",
		Help:    "Wall time of a billing cycle.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	resourcesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_resources_processed_total",
		Help: "Per-resource outcomes of billing cycles.",
	}, []string{"outcome"})

	coinsCharged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_coins_charged_total",
		Help: "Coins debited by billing cycles.",
	})

	lastCycleEligible = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_last_cycle_eligible_resources",
		Help: "Billing-eligible resources seen by the most recent cycle.",
	})
)

const (
	outcomeCharged   = "charged"
	outcomeSuspended = "suspended"
	outcomeResumed   = "resumed"
	outcomeUnbilled  = "unbilled"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)
