package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsCreated counts accepted payment requests by channel
	PaymentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_payments_created_total",
		Help: "Payments accepted for processing, by channel",
	}, []string{"channel"})

	// PaymentTransitions counts lifecycle transitions by target status
	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_payment_transitions_total",
		Help: "Payment status transitions, by resulting status",
	}, []string{"status"})

	// CallbacksReceived counts provider callbacks by provider and outcome
	// (processed, unmatched, rejected)
	CallbacksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_callbacks_received_total",
		Help: "Provider callbacks received, by provider and outcome",
	}, []string{"provider", "outcome"})

	// WebhookDeliveries counts outbound webhook attempts by outcome
	// (delivered, retried, exhausted)
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_webhook_deliveries_total",
		Help: "Outbound webhook delivery attempts, by outcome",
	}, []string{"outcome"})

	// QueueJobs counts queue job completions by queue and outcome
	// (processed, retried, dead)
	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_queue_jobs_total",
		Help: "Queue jobs handled, by queue and outcome",
	}, []string{"queue", "outcome"})

	// RefundsProcessed counts refunds by channel
	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhecash_refunds_processed_total",
		Help: "Refunds processed, by channel",
	}, []string{"channel"})
)
