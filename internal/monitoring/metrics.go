package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefundsTotal counts refund requests by outcome
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total number of refund requests by outcome",
	}, []string{"outcome"}) // completed, idempotent_replay, rejected, gateway_failed

	// ReconciliationTotal counts settlement reconciliation runs by branch taken
	ReconciliationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reconciliation_total",
		Help: "Total number of refund-to-settlement reconciliation runs by branch",
	}, []string{"branch"}) // no_settlement, adjusted, adjustment_created, duplicate, error

	// ReconciliationFailures counts reconciliation errors that were swallowed
	// by policy (the refund stands; reconciliation is retried later)
	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_reconciliation_failures_total",
		Help: "Total number of reconciliation errors recovered locally",
	})

	// SettlementsCreated counts settlements created by the daily batch
	SettlementsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_created_total",
		Help: "Total number of settlements created by the daily batch",
	})

	// SettlementsConfirmed counts settlements confirmed by the daily batch
	SettlementsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_confirmed_total",
		Help: "Total number of settlements confirmed by the daily batch",
	})

	// AdjustmentsConfirmed counts adjustments confirmed by the batch
	AdjustmentsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_adjustments_confirmed_total",
		Help: "Total number of settlement adjustments confirmed by the batch",
	})

	// BatchDuration observes wall time per batch job
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_batch_duration_seconds",
		Help:    "Duration of settlement batch jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"}) // create, confirm, confirm_adjustments
)
