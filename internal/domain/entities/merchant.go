package entities

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus gates whether a merchant may transact
type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "active"
	MerchantStatusSuspended MerchantStatus = "suspended"
)

// Merchant owns payments, ledger entries and webhook subscriptions
type Merchant struct {
	ID           uuid.UUID      `json:"id"`
	BusinessName string         `json:"businessName"`
	Email        string         `json:"email"`
	Environment  string         `json:"environment"`
	Status       MerchantStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    *time.Time     `json:"-"`
}

// ApiKey is an API credential for a merchant. The secret is bcrypt-hashed at
// rest; only the key id (pk_…) is stored in the clear.
type ApiKey struct {
	ID         uuid.UUID  `json:"id"`
	MerchantID uuid.UUID  `json:"merchantId"`
	KeyID      string     `json:"keyId"`
	SecretHash string     `json:"-"`
	IsActive   bool       `json:"isActive"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"-"`
}
