package usecases

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/domain/repositories"
	"dhecash.backend/pkg/crypto"
)

// validWebhookEvents is the accepted subscription vocabulary
var validWebhookEvents = map[string]bool{
	entities.EventPaymentSucceeded: true,
	entities.EventPaymentFailed:    true,
	entities.EventPaymentCancelled: true,
	entities.EventPaymentRefunded:  true,
	entities.EventWildcard:         true,
}

// WebhookUsecase manages merchant webhook subscriptions
type WebhookUsecase struct {
	configRepo repositories.WebhookConfigRepository
}

// NewWebhookUsecase creates a new webhook usecase
func NewWebhookUsecase(configRepo repositories.WebhookConfigRepository) *WebhookUsecase {
	return &WebhookUsecase{configRepo: configRepo}
}

// CreateConfig registers a subscription and returns it with the signing
// secret. The secret is shown exactly once.
func (u *WebhookUsecase) CreateConfig(ctx context.Context, merchantID uuid.UUID, input *entities.CreateWebhookConfigInput) (*entities.WebhookConfig, error) {
	for _, e := range input.Events {
		if !validWebhookEvents[e] {
			return nil, domainerrors.Validation("unknown event type").WithDetails(map[string]interface{}{
				"event": e,
			})
		}
	}

	token, err := crypto.GenerateRandomToken(24)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	config := &entities.WebhookConfig{
		ID:         uuid.New(),
		MerchantID: merchantID,
		URL:        input.URL,
		Events:     input.Events,
		Secret:     "whsec_" + token,
		IsActive:   true,
	}
	if err := u.configRepo.Create(ctx, config); err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return config, nil
}

// ListConfigs returns all of the merchant's subscriptions
func (u *WebhookUsecase) ListConfigs(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error) {
	configs, err := u.configRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return configs, nil
}

// DeleteConfig removes one subscription owned by the merchant
func (u *WebhookUsecase) DeleteConfig(ctx context.Context, merchantID, id uuid.UUID) error {
	if err := u.configRepo.Delete(ctx, merchantID, id); err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return domainerrors.NotFound("webhook config not found")
		}
		return domainerrors.InternalError(err)
	}
	return nil
}
