package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dhecash.backend/internal/metrics"
	"dhecash.backend/pkg/logger"
)

// Handler processes one job. A non-nil error triggers a retry with
// exponential backoff until the attempt budget runs out.
type Handler func(ctx context.Context, job *Job) error

// ExhaustedFunc runs after a job burns its final attempt
type ExhaustedFunc func(ctx context.Context, job *Job, err error)

const (
	dequeueTimeout  = 2 * time.Second
	promoteInterval = time.Second
)

// WorkerConfig tunes a worker pool for one queue
type WorkerConfig struct {
	Queue       string
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	// DeadQueue receives a copy of jobs that exhaust their attempts.
	// Empty means no dead-letter copy.
	DeadQueue string
	// OnExhausted is invoked once per exhausted job, after the dead-letter
	// copy. Optional.
	OnExhausted ExhaustedFunc
}

// Worker consumes one queue with a pool of goroutines and a delayed-set
// promoter.
type Worker struct {
	queue   *Queue
	cfg     WorkerConfig
	handler Handler
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewWorker creates a worker pool for the configured queue
func NewWorker(queue *Queue, cfg WorkerConfig, handler Handler) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Worker{
		queue:   queue,
		cfg:     cfg,
		handler: handler,
		stop:    make(chan struct{}),
	}
}

// Start launches the consumer pool and the promoter. It returns immediately;
// use Stop or cancel the context to shut down.
func (w *Worker) Start(ctx context.Context) {
	logger.Info(ctx, "starting queue worker",
		zap.String("queue", w.cfg.Queue),
		zap.Int("concurrency", w.cfg.Concurrency),
	)

	w.wg.Add(1)
	go w.promoteLoop(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx)
	}
}

// Stop signals all goroutines and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDelayed(ctx, w.cfg.Queue); err != nil {
				logger.Error(ctx, "promoting delayed jobs failed",
					zap.String("queue", w.cfg.Queue),
					zap.Error(err),
				)
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.Queue, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "dequeue failed",
				zap.String("queue", w.cfg.Queue),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, job)
	}
}

// process runs the handler once and routes the outcome: success, scheduled
// retry, or dead-letter.
func (w *Worker) process(ctx context.Context, job *Job) {
	job.Attempt++

	err := w.handler(ctx, job)
	if err == nil {
		metrics.QueueJobs.WithLabelValues(w.cfg.Queue, "processed").Inc()
		return
	}

	job.LastError = err.Error()

	if job.Attempt >= w.cfg.MaxAttempts {
		logger.Error(ctx, "job exhausted its attempts",
			zap.String("queue", w.cfg.Queue),
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", job.Type),
			zap.Int("attempts", job.Attempt),
			zap.Error(err),
		)
		metrics.QueueJobs.WithLabelValues(w.cfg.Queue, "dead").Inc()

		if w.cfg.DeadQueue != "" {
			if dlqErr := w.queue.Enqueue(ctx, w.cfg.DeadQueue, job); dlqErr != nil {
				logger.Error(ctx, "dead-letter enqueue failed",
					zap.String("queue", w.cfg.Queue),
					zap.String("job_id", job.ID.String()),
					zap.Error(dlqErr),
				)
			}
		}
		if w.cfg.OnExhausted != nil {
			w.cfg.OnExhausted(ctx, job, err)
		}
		return
	}

	delay := w.cfg.BackoffBase << (job.Attempt - 1)
	logger.Warn(ctx, "job failed, scheduling retry",
		zap.String("queue", w.cfg.Queue),
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempt),
		zap.Duration("retry_in", delay),
		zap.Error(err),
	)
	metrics.QueueJobs.WithLabelValues(w.cfg.Queue, "retried").Inc()

	if retryErr := w.queue.EnqueueIn(ctx, w.cfg.Queue, job, delay); retryErr != nil {
		logger.Error(ctx, "retry enqueue failed",
			zap.String("queue", w.cfg.Queue),
			zap.String("job_id", job.ID.String()),
			zap.Error(retryErr),
		)
	}
}
