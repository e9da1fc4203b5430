package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordbounty_ledger_calls_total",
			Help: "Total number of ledger calls by operation and result",
		},
		[]string{"op", "result"},
	)

	LedgerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordbounty_ledger_call_duration_seconds",
			Help:    "Duration of ledger calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~262s
		},
		[]string{"op"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordbounty_settlements_total",
			Help: "Total number of settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	BountyTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordbounty_bounty_transitions_total",
			Help: "Total number of bounty status transitions",
		},
		[]string{"to"},
	)

	SweptDraftsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordbounty_swept_drafts_total",
			Help: "Total number of expired drafts deleted by the sweeper",
		},
	)

	ReconciliationWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordbounty_reconciliation_warnings_total",
			Help: "Total number of non-fatal reconciliation conditions",
		},
		[]string{"kind"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordbounty_attempts_total",
			Help: "Total number of scored guesses",
		},
		[]string{"correct"},
	)
)
