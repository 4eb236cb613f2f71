package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeRefund TransactionType = "refund"
)

// TransactionStatus is the settlement status of a ledger entry
type TransactionStatus string

const (
	TransactionStatusSucceeded TransactionStatus = "succeeded"
)

// Transaction is an immutable ledger record of one money event against a payment
type Transaction struct {
	ID          uuid.UUID         `json:"-"`
	Reference   string            `json:"reference"`
	PaymentID   uuid.UUID         `json:"-"`
	MerchantID  uuid.UUID         `json:"-"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Amount      float64           `json:"amount"`
	Currency    Currency          `json:"currency"`
	Description null.String       `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
