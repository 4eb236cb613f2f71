package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dhecash.backend/internal/metrics"
	"dhecash.backend/pkg/logger"
)

// expiryBatchSize bounds how many rows one sweep touches
const expiryBatchSize = 100

// pendingExpirer is the slice of the payment repository the sweeper needs
type pendingExpirer interface {
	ExpirePending(ctx context.Context, limit int) (int64, error)
}

// PaymentExpiryJob periodically expires pending payments whose checkout
// window has closed.
type PaymentExpiryJob struct {
	repo     pendingExpirer
	interval time.Duration
	stop     chan struct{}
}

func NewPaymentExpiryJob(repo pendingExpirer) *PaymentExpiryJob {
	return &PaymentExpiryJob{
		repo:     repo,
		interval: 30 * time.Second,
		stop:     make(chan struct{}),
	}
}

func (j *PaymentExpiryJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting payment expiry job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "payment expiry job stopped")
			return
		case <-j.stop:
			logger.Info(ctx, "payment expiry job stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *PaymentExpiryJob) Stop() {
	close(j.stop)
}

func (j *PaymentExpiryJob) sweep(ctx context.Context) {
	expired, err := j.repo.ExpirePending(ctx, expiryBatchSize)
	if err != nil {
		logger.Error(ctx, "expiring pending payments failed", zap.Error(err))
		return
	}
	if expired == 0 {
		return
	}

	metrics.PaymentTransitions.WithLabelValues("expired").Add(float64(expired))
	logger.Info(ctx, "expired stale pending payments", zap.Int64("count", expired))
}
