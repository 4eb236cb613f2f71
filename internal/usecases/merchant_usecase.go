package usecases

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/domain/repositories"
	"dhecash.backend/pkg/crypto"
	"dhecash.backend/pkg/reference"
)

// RegisterMerchantInput represents input for merchant onboarding
type RegisterMerchantInput struct {
	BusinessName string `json:"businessName" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Environment  string `json:"environment" binding:"required,oneof=test live"`
}

// RegisteredMerchant carries the onboarding result, including the API secret
// that is shown exactly once.
type RegisteredMerchant struct {
	Merchant  *entities.Merchant `json:"merchant"`
	KeyID     string             `json:"keyId"`
	APISecret string             `json:"apiSecret"`
}

// MerchantUsecase handles merchant onboarding and API key authentication
type MerchantUsecase struct {
	merchantRepo repositories.MerchantRepository
	apiKeyRepo   repositories.ApiKeyRepository
	uow          repositories.UnitOfWork
}

// NewMerchantUsecase creates a new merchant usecase
func NewMerchantUsecase(
	merchantRepo repositories.MerchantRepository,
	apiKeyRepo repositories.ApiKeyRepository,
	uow repositories.UnitOfWork,
) *MerchantUsecase {
	return &MerchantUsecase{
		merchantRepo: merchantRepo,
		apiKeyRepo:   apiKeyRepo,
		uow:          uow,
	}
}

// Register onboards a merchant and issues their first API key pair
func (u *MerchantUsecase) Register(ctx context.Context, input *RegisterMerchantInput) (*RegisteredMerchant, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if _, err := u.merchantRepo.GetByEmail(ctx, email); err == nil {
		return nil, domainerrors.Validation("a merchant with this email already exists")
	} else if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, domainerrors.InternalError(err)
	}

	keyID, secret, err := reference.NewAPIKeyPair(input.Environment)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	secretHash, err := crypto.HashSecret(secret)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	merchant := &entities.Merchant{
		ID:           uuid.New(),
		BusinessName: input.BusinessName,
		Email:        email,
		Environment:  input.Environment,
		Status:       entities.MerchantStatusActive,
	}
	key := &entities.ApiKey{
		ID:         uuid.New(),
		MerchantID: merchant.ID,
		KeyID:      keyID,
		SecretHash: secretHash,
		IsActive:   true,
	}

	err = u.uow.Do(ctx, func(ctx context.Context) error {
		if err := u.merchantRepo.Create(ctx, merchant); err != nil {
			return err
		}
		return u.apiKeyRepo.Create(ctx, key)
	})
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	return &RegisteredMerchant{
		Merchant:  merchant,
		KeyID:     keyID,
		APISecret: secret,
	}, nil
}

// AuthenticateAPIKey resolves an API key credential pair to its merchant.
// Used by the request auth middleware.
func (u *MerchantUsecase) AuthenticateAPIKey(ctx context.Context, keyID, secret string) (*entities.Merchant, error) {
	key, err := u.apiKeyRepo.GetByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.APIKeyInvalid("unknown API key")
		}
		return nil, domainerrors.InternalError(err)
	}
	if !key.IsActive || !crypto.CheckSecret(secret, key.SecretHash) {
		return nil, domainerrors.APIKeyInvalid("invalid API key credentials")
	}

	merchant, err := u.merchantRepo.GetByID(ctx, key.MerchantID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if merchant.Status != entities.MerchantStatusActive {
		return nil, domainerrors.InsufficientPermissions("merchant account is suspended")
	}

	// Best effort; auth must not fail on a bookkeeping write
	_ = u.apiKeyRepo.TouchLastUsed(ctx, key.ID)

	return merchant, nil
}

// GetMerchant fetches one merchant by id
func (u *MerchantUsecase) GetMerchant(ctx context.Context, id uuid.UUID) (*entities.Merchant, error) {
	merchant, err := u.merchantRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("merchant not found")
		}
		return nil, domainerrors.InternalError(err)
	}
	return merchant, nil
}
