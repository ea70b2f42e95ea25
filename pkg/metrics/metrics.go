package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolheating_cycles_total",
		Help: "Control cycles by decision outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poolheating_cycle_duration_seconds",
		Help:    "Duration of one control cycle",
		Buckets: prometheus.DefBuckets,
	})

	StatusSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolheating_status_source_total",
		Help: "Which source answered the status arbitration",
	}, []string{"source"})

	QuotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolheating_quota_calls_used",
		Help: "Vendor API calls used in the current window",
	})

	CurrentSetpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolheating_setpoint_celsius",
		Help: "Last known device setpoint",
	})

	WaterTemp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolheating_water_temp_celsius",
		Help: "Last known pool water temperature",
	})

	PriceLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poolheating_price_level",
		Help: "Current price classification, 1 on the active level",
	}, []string{"level"})

	DecisionSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolheating_decision_sync_failures_total",
		Help: "Failed attempts to push decisions to the cloud",
	})
)
