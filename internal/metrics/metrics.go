package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsTotal counts daily claim attempts by outcome
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_claims_total",
			Help: "Total number of daily claim attempts",
		},
		[]string{"outcome"},
	)

	// ReferralsTotal counts referral bindings
	ReferralsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_referrals_total",
			Help: "Total number of referral bindings",
		},
	)

	// TaskCompletionsTotal counts credited tasks by how they were completed
	TaskCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_task_completions_total",
			Help: "Total number of credited task completions",
		},
		[]string{"source"},
	)

	// WithdrawalsTotal counts withdrawal attempts by status
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_withdrawals_total",
			Help: "Total number of withdrawal attempts",
		},
		[]string{"status"},
	)

	// WithdrawalDuration tracks how long the on-chain transfer took
	WithdrawalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rewards_withdrawal_duration_seconds",
			Help:    "Withdrawal transfer duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// WithdrawnTokens sums tokens sent on chain
	WithdrawnTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_withdrawn_tokens_total",
			Help: "Total number of whole tokens withdrawn",
		},
	)

	// NotificationsTotal counts notification deliveries by recipient and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"recipient", "status"},
	)

	// BotUpdatesTotal counts handled chat updates by kind
	BotUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_bot_updates_total",
			Help: "Total number of chat updates handled",
		},
		[]string{"kind"},
	)

	// FeedClients tracks connected admin feed clients
	FeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rewards_feed_clients",
			Help: "Number of connected admin feed clients",
		},
	)

	// FeedEventsDropped counts events not delivered to slow feed clients
	FeedEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_feed_events_dropped_total",
			Help: "Total number of feed events dropped for slow clients",
		},
	)
)
