package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multisender_build_info",
			Help: "Build information of the multisender service",
		},
		[]string{"version", "commit", "date"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisender_jobs_total",
			Help: "Total number of distribution jobs by final status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "multisender_job_duration_seconds",
			Help:    "Duration of a processing cycle that finished a distribution job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		},
	)

	RecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisender_recipients_total",
			Help: "Total number of recipients by final status and error kind",
		},
		[]string{"status", "error_kind"},
	)

	AccountsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "multisender_token_accounts_created_total",
			Help: "Total number of associated token accounts created for recipients",
		},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisender_batches_total",
			Help: "Total number of submitted batches by final state",
		},
		[]string{"state", "error_kind"},
	)

	SubmissionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "multisender_submission_attempts",
			Help:    "Number of attempts it took to resolve a batch",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	ConfirmationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "multisender_confirmation_duration_seconds",
			Help:    "Time from send to confirmation of a transaction",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
		},
	)

	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisender_rpc_errors_total",
			Help: "Total number of classified RPC and wallet errors",
		},
		[]string{"kind"},
	)
)
