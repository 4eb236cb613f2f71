package repositories

import (
	"context"

	"github.com/google/uuid"
	"dhecash.backend/internal/domain/entities"
)

// MerchantRepository defines merchant data operations
type MerchantRepository interface {
	Create(ctx context.Context, merchant *entities.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Merchant, error)
	GetByEmail(ctx context.Context, email string) (*entities.Merchant, error)
}

// ApiKeyRepository defines API key data operations
type ApiKeyRepository interface {
	Create(ctx context.Context, key *entities.ApiKey) error
	GetByKeyID(ctx context.Context, keyID string) (*entities.ApiKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}
