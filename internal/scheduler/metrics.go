package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_scheduler_ticks_skipped_total",
		Help: "Timer ticks dropped because a cycle was still running.",
	})

	armedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_scheduler_armed",
		Help: "1 when the billing timer is armed.",
	})

	intervalGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_scheduler_interval_seconds",
		Help: "Armed billing cadence.",
	})
)
