package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Queue names. Payment jobs are partitioned per channel so a slow provider
// cannot starve the others.
const (
	QueuePaymentsMonCash = "payments.moncash"
	QueuePaymentsNatCash = "payments.natcash"
	QueuePaymentsStripe  = "payments.stripe"
	QueuePaymentsDead    = "payments.dlq"
	QueueWebhooks        = "notifications.webhooks"
)

// Job types
const (
	JobTypeProcessPayment = "process_payment"
	JobTypeDeliverWebhook = "deliver_webhook"
)

// Job is the unit of work persisted in redis. Delivery is at-least-once:
// handlers must be idempotent.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewJob creates a job carrying the given payload
func NewJob(jobType string, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling job payload: %w", err)
	}
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    raw,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Bind unmarshals the job payload into out
func (j *Job) Bind(out interface{}) error {
	return json.Unmarshal(j.Payload, out)
}

// Queue is a durable redis-backed job queue. Ready jobs live in a list
// (LPUSH/BRPOP); jobs scheduled for later live in a companion sorted set
// scored by their ready time and are promoted by the worker.
type Queue struct {
	client *goredis.Client
}

// NewQueue creates a queue over the given redis client
func NewQueue(client *goredis.Client) *Queue {
	return &Queue{client: client}
}

func delayedKey(name string) string {
	return name + ":delayed"
}

// Enqueue makes the job immediately available on the named queue
func (q *Queue) Enqueue(ctx context.Context, name string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.client.LPush(ctx, name, raw).Err(); err != nil {
		return fmt.Errorf("enqueueing to %s: %w", name, err)
	}
	return nil
}

// EnqueueIn schedules the job to become available after the given delay
func (q *Queue) EnqueueIn(ctx context.Context, name string, job *Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	readyAt := time.Now().Add(delay).UnixMilli()
	err = q.client.ZAdd(ctx, delayedKey(name), goredis.Z{
		Score:  float64(readyAt),
		Member: raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling on %s: %w", name, err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a job. Returns nil when the
// queue stays empty.
func (q *Queue) Dequeue(ctx context.Context, name string, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, name).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeueing from %s: %w", name, err)
	}
	// BRPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decoding job from %s: %w", name, err)
	}
	return &job, nil
}

// PromoteDelayed moves every due job from the delayed set onto the ready
// list. Returns the number of jobs promoted.
func (q *Queue) PromoteDelayed(ctx context.Context, name string) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, delayedKey(name), &goredis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading delayed set for %s: %w", name, err)
	}

	promoted := 0
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, delayedKey(name), raw).Result()
		if err != nil {
			return promoted, fmt.Errorf("removing delayed job from %s: %w", name, err)
		}
		if removed == 0 {
			// Another worker promoted it first
			continue
		}
		if err := q.client.LPush(ctx, name, raw).Err(); err != nil {
			return promoted, fmt.Errorf("promoting job to %s: %w", name, err)
		}
		promoted++
	}
	return promoted, nil
}

// Len returns the number of ready jobs on the named queue
func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	return q.client.LLen(ctx, name).Result()
}
