package usecases

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/domain/repositories"
	"dhecash.backend/internal/infrastructure/queue"
	"dhecash.backend/internal/metrics"
	"dhecash.backend/pkg/logger"
)

const (
	// SignatureHeader carries the HMAC signature on outbound webhooks
	SignatureHeader = "DheCash-Signature"
	// EventHeader carries the event type on outbound webhooks
	EventHeader = "DheCash-Event-Type"
	// TimestampHeader mirrors the t= component of the signature
	TimestampHeader = "DheCash-Timestamp"

	userAgent = "DheCash-Webhooks/1.0"

	// apiVersion stamps every outbound envelope; bump on breaking payload
	// changes so receivers can branch.
	apiVersion = "1.0"

	deliveryTimeout = 30 * time.Second
	// responseBodyLimit bounds what gets persisted in the delivery log
	responseBodyLimit = 500
)

// DeliverWebhookPayload is the job payload for one outbound delivery
type DeliverWebhookPayload struct {
	WebhookLogID uuid.UUID `json:"webhook_log_id"`
}

// webhookEnvelope is the wire shape of an outbound notification. The data
// block is a deliberate subset of the payment: merchant endpoints never see
// payer contact details, metadata or the checkout redirect.
type webhookEnvelope struct {
	APIVersion string           `json:"api_version"`
	EventType  string           `json:"event_type"`
	CreatedAt  time.Time        `json:"created_at"`
	Data       webhookEventData `json:"data"`
}

type webhookEventData struct {
	PaymentRef            string      `json:"payment_ref"`
	OrderID               null.String `json:"order_id"`
	Channel               string      `json:"channel"`
	Status                string      `json:"status"`
	Amount                float64     `json:"amount"`
	Currency              string      `json:"currency"`
	FeeAmount             float64     `json:"fee_amount"`
	NetAmount             float64     `json:"net_amount"`
	ProviderTransactionID null.String `json:"provider_transaction_id"`
	CreatedAt             time.Time   `json:"created_at"`
	CompletedAt           *time.Time  `json:"completed_at,omitempty"`
	FailedAt              *time.Time  `json:"failed_at,omitempty"`
	FailureReason         null.String `json:"failure_reason,omitempty"`
}

func newWebhookEventData(p *entities.Payment) webhookEventData {
	return webhookEventData{
		PaymentRef:            p.Reference,
		OrderID:               p.OrderID,
		Channel:               string(p.Channel),
		Status:                string(p.Status),
		Amount:                p.Amount,
		Currency:              string(p.Currency),
		FeeAmount:             p.FeeAmount,
		NetAmount:             p.NetAmount,
		ProviderTransactionID: p.ProviderTransactionID,
		CreatedAt:             p.CreatedAt,
		CompletedAt:           p.CompletedAt,
		FailedAt:              p.FailedAt,
		FailureReason:         p.FailureReason,
	}
}

// DispatchUsecase fans payment events out to merchant webhook endpoints and
// performs the actual deliveries from the queue.
type DispatchUsecase struct {
	configRepo repositories.WebhookConfigRepository
	logRepo    repositories.WebhookLogRepository
	jobs       jobEnqueuer
	client     *http.Client
}

// NewDispatchUsecase creates a new dispatch usecase
func NewDispatchUsecase(
	configRepo repositories.WebhookConfigRepository,
	logRepo repositories.WebhookLogRepository,
	jobs jobEnqueuer,
) *DispatchUsecase {
	return &DispatchUsecase{
		configRepo: configRepo,
		logRepo:    logRepo,
		jobs:       jobs,
		client:     &http.Client{Timeout: deliveryTimeout},
	}
}

// SetHTTPClient overrides the delivery client (used for testing)
func (u *DispatchUsecase) SetHTTPClient(client *http.Client) {
	u.client = client
}

// Fanout creates one pending delivery log per subscribed endpoint and
// enqueues the delivery jobs. Runs inside the caller's transaction when one
// is active, so logs commit atomically with the payment transition.
func (u *DispatchUsecase) Fanout(ctx context.Context, payment *entities.Payment, eventType string) error {
	configs, err := u.configRepo.ListActiveByMerchant(ctx, payment.MerchantID)
	if err != nil {
		return err
	}

	envelope := webhookEnvelope{
		APIVersion: apiVersion,
		EventType:  eventType,
		CreatedAt:  time.Now().UTC(),
		Data:       newWebhookEventData(payment),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	for _, config := range configs {
		if !config.SubscribedTo(eventType) {
			continue
		}

		log := &entities.WebhookLog{
			ID:              uuid.New(),
			WebhookConfigID: config.ID,
			PaymentID:       payment.ID,
			MerchantID:      payment.MerchantID,
			EventType:       eventType,
			Payload:         string(payload),
			Status:          entities.WebhookLogStatusPending,
		}
		if err := u.logRepo.Create(ctx, log); err != nil {
			return err
		}

		job, err := queue.NewJob(queue.JobTypeDeliverWebhook, DeliverWebhookPayload{WebhookLogID: log.ID})
		if err != nil {
			return err
		}
		if err := u.jobs.Enqueue(ctx, queue.QueueWebhooks, job); err != nil {
			// The pending log row survives; deliveries can be replayed from it
			logger.Error(ctx, "enqueueing webhook delivery failed",
				zap.String("webhook_log_id", log.ID.String()),
				zap.Error(err),
			)
			continue
		}

		logger.Debug(ctx, "webhook delivery scheduled",
			zap.String("webhook_log_id", log.ID.String()),
			zap.String("event_type", eventType),
			zap.String("url", config.URL),
		)
	}
	return nil
}

// DeliverWebhook performs one delivery attempt. Called from the queue
// worker; a non-nil return schedules a retry.
func (u *DispatchUsecase) DeliverWebhook(ctx context.Context, job *queue.Job) error {
	var payload DeliverWebhookPayload
	if err := job.Bind(&payload); err != nil {
		return err
	}

	log, err := u.logRepo.GetByID(ctx, payload.WebhookLogID)
	if err != nil {
		return err
	}
	// Redelivered jobs are no-ops once the notification landed
	if log.Status == entities.WebhookLogStatusDelivered {
		return nil
	}

	config, err := u.configRepo.GetByID(ctx, log.WebhookConfigID)
	if err != nil {
		return err
	}

	status, body, err := u.post(ctx, config, log)

	now := time.Now()
	log.AttemptCount++
	log.LastAttemptAt = &now
	if status != 0 {
		log.HTTPStatus = &status
	}
	log.ResponseBody = null.NewString(body, body != "")

	if err == nil && status >= 200 && status < 300 {
		log.Status = entities.WebhookLogStatusDelivered
		log.DeliveredAt = &now
		if recordErr := u.logRepo.RecordAttempt(ctx, log); recordErr != nil {
			return recordErr
		}
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		logger.Info(ctx, "webhook delivered",
			zap.String("webhook_log_id", log.ID.String()),
			zap.String("event_type", log.EventType),
			zap.Int("attempt", log.AttemptCount),
		)
		return nil
	}

	if recordErr := u.logRepo.RecordAttempt(ctx, log); recordErr != nil {
		return recordErr
	}
	metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	if err != nil {
		return err
	}
	return fmt.Errorf("endpoint returned %d", status)
}

// MarkExhausted flips a log to failed after the last delivery attempt.
// Wired as the queue worker's exhaustion hook.
func (u *DispatchUsecase) MarkExhausted(ctx context.Context, job *queue.Job, cause error) {
	var payload DeliverWebhookPayload
	if err := job.Bind(&payload); err != nil {
		logger.Error(ctx, "decoding exhausted webhook job failed", zap.Error(err))
		return
	}

	log, err := u.logRepo.GetByID(ctx, payload.WebhookLogID)
	if err != nil {
		logger.Error(ctx, "loading exhausted webhook log failed",
			zap.String("webhook_log_id", payload.WebhookLogID.String()),
			zap.Error(err),
		)
		return
	}
	if log.Status == entities.WebhookLogStatusDelivered {
		return
	}

	log.Status = entities.WebhookLogStatusFailed
	if err := u.logRepo.RecordAttempt(ctx, log); err != nil {
		logger.Error(ctx, "marking webhook log failed errored",
			zap.String("webhook_log_id", log.ID.String()),
			zap.Error(err),
		)
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("exhausted").Inc()
	logger.Error(ctx, "webhook delivery exhausted its attempts",
		zap.String("webhook_log_id", log.ID.String()),
		zap.String("event_type", log.EventType),
		zap.Error(cause),
	)
}

// post sends the signed notification and returns the HTTP status and a
// truncated response body.
func (u *DispatchUsecase) post(ctx context.Context, config *entities.WebhookConfig, log *entities.WebhookLog) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, strings.NewReader(log.Payload))
	if err != nil {
		return 0, "", err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(EventHeader, log.EventType)
	req.Header.Set(TimestampHeader, timestamp)
	req.Header.Set(SignatureHeader, Sign(config.Secret, timestamp, []byte(log.Payload)))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	return resp.StatusCode, string(body), nil
}

// Sign produces the DheCash-Signature header value: the scheme is
// "t=<unix>,v1=<hex hmac-sha256 of '<unix>.<payload>'>" so receivers can
// both authenticate the payload and bound its age.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// ListDeliveries returns the delivery log of one payment, newest first
func (u *DispatchUsecase) ListDeliveries(ctx context.Context, merchantID uuid.UUID, paymentID uuid.UUID) ([]*entities.WebhookLog, error) {
	logs, err := u.logRepo.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	// Scope check: payment ownership is the caller's concern, but never leak
	// another merchant's rows
	scoped := logs[:0]
	for _, l := range logs {
		if l.MerchantID == merchantID {
			scoped = append(scoped, l)
		}
	}
	return scoped, nil
}
