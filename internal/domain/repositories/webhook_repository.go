package repositories

import (
	"context"

	"github.com/google/uuid"
	"dhecash.backend/internal/domain/entities"
)

// WebhookConfigRepository defines webhook subscription operations
type WebhookConfigRepository interface {
	Create(ctx context.Context, config *entities.WebhookConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookConfig, error)
	ListActiveByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error)
	Delete(ctx context.Context, merchantID, id uuid.UUID) error
}

// WebhookLogRepository defines delivery audit log operations
type WebhookLogRepository interface {
	Create(ctx context.Context, log *entities.WebhookLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookLog, error)
	// RecordAttempt updates the log row after one delivery attempt
	RecordAttempt(ctx context.Context, log *entities.WebhookLog) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.WebhookLog, error)
}
