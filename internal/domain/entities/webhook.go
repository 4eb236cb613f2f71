package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Outbound webhook event types
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventPaymentRefunded  = "payment.refunded"

	// EventWildcard subscribes a config to every event type
	EventWildcard = "*"
)

// WebhookConfig is a per-merchant outbound notification subscription
type WebhookConfig struct {
	ID         uuid.UUID  `json:"id"`
	MerchantID uuid.UUID  `json:"-"`
	URL        string     `json:"url"`
	Events     []string   `json:"events"`
	Secret     string     `json:"-"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"-"`
}

// SubscribedTo reports whether the config wants the given event type
func (c *WebhookConfig) SubscribedTo(eventType string) bool {
	for _, e := range c.Events {
		if e == EventWildcard || e == eventType {
			return true
		}
	}
	return false
}

// WebhookLogStatus is the delivery state of one outbound notification
type WebhookLogStatus string

const (
	WebhookLogStatusPending   WebhookLogStatus = "pending"
	WebhookLogStatusDelivered WebhookLogStatus = "delivered"
	WebhookLogStatusFailed    WebhookLogStatus = "failed"
)

// WebhookLog records delivery attempts of one outbound notification
type WebhookLog struct {
	ID              uuid.UUID        `json:"id"`
	WebhookConfigID uuid.UUID        `json:"webhookConfigId"`
	PaymentID       uuid.UUID        `json:"paymentId"`
	MerchantID      uuid.UUID        `json:"-"`
	EventType       string           `json:"eventType"`
	Payload         string           `json:"payload"`
	Status          WebhookLogStatus `json:"status"`
	HTTPStatus      *int             `json:"httpStatus,omitempty"`
	ResponseBody    null.String      `json:"responseBody,omitempty"`
	AttemptCount    int              `json:"attemptCount"`
	LastAttemptAt   *time.Time       `json:"lastAttemptAt,omitempty"`
	DeliveredAt     *time.Time       `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// CreateWebhookConfigInput represents input for registering a subscription
type CreateWebhookConfigInput struct {
	URL    string   `json:"url" binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}
