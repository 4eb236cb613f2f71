package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Channel identifies the payment processor
type Channel string

const (
	ChannelMonCash Channel = "moncash"
	ChannelNatCash Channel = "natcash"
	ChannelStripe  Channel = "stripe"
)

// Valid reports whether c names a supported processor
func (c Channel) Valid() bool {
	switch c {
	case ChannelMonCash, ChannelNatCash, ChannelStripe:
		return true
	}
	return false
}

// Currency is a supported settlement currency
type Currency string

const (
	CurrencyHTG Currency = "HTG"
	CurrencyUSD Currency = "USD"
)

// Valid reports whether cur is supported
func (cur Currency) Valid() bool {
	return cur == CurrencyHTG || cur == CurrencyUSD
}

// PaymentStatus represents payment lifecycle status
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusExpired           PaymentStatus = "expired"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

// Valid reports whether s names a lifecycle state
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired,
		PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	}
	return false
}

// FeeRates is the per-channel fee table
var FeeRates = map[Channel]float64{
	ChannelMonCash: 0.025,
	ChannelNatCash: 0.025,
	ChannelStripe:  0.035,
}

// PaymentExpiry is the default window before a pending payment expires
const PaymentExpiry = 30 * time.Minute

// Payment represents a payment entity
type Payment struct {
	ID                    uuid.UUID     `json:"-"`
	Reference             string        `json:"reference"`
	MerchantID            uuid.UUID     `json:"-"`
	CustomerID            *uuid.UUID    `json:"customerId,omitempty"`
	Channel               Channel       `json:"channel"`
	Status                PaymentStatus `json:"status"`
	Amount                float64       `json:"amount"`
	Currency              Currency      `json:"currency"`
	FeeRate               float64       `json:"feeRate"`
	FeeAmount             float64       `json:"feeAmount"`
	NetAmount             float64       `json:"netAmount"`
	RefundedAmount        float64       `json:"refundedAmount"`
	ProviderTransactionID null.String   `json:"providerTransactionId,omitempty"`
	RedirectURL           null.String   `json:"redirectUrl,omitempty"`
	IdempotencyKey        null.String   `json:"-"`
	OrderID               null.String   `json:"orderId,omitempty"`
	CustomerEmail         null.String   `json:"customerEmail,omitempty"`
	CustomerPhone         null.String   `json:"customerPhone,omitempty"`
	CustomerName          null.String   `json:"customerName,omitempty"`
	Description           null.String   `json:"description,omitempty"`
	Metadata              null.String   `json:"metadata,omitempty"`
	FailureReason         null.String   `json:"failureReason,omitempty"`
	ExpiresAt             time.Time     `json:"expiresAt"`
	CompletedAt           *time.Time    `json:"completedAt,omitempty"`
	FailedAt              *time.Time    `json:"failedAt,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
	DeletedAt             *time.Time    `json:"-"`
}

// Refundable reports whether the payment can accept a refund
func (p *Payment) Refundable() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusPartiallyRefunded
}

// Terminal reports whether no further provider-driven transitions apply
func (p *Payment) Terminal() bool {
	switch p.Status {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// CreatePaymentInput represents input for creating a payment
type CreatePaymentInput struct {
	Amount        float64           `json:"amount" binding:"required,gt=0"`
	Currency      Currency          `json:"currency" binding:"required"`
	Channel       Channel           `json:"channel" binding:"required"`
	OrderID       string            `json:"orderId,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	CustomerName  string            `json:"customerName,omitempty"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RefundInput represents input for refunding a payment
type RefundInput struct {
	Amount float64 `json:"amount" binding:"required"`
	Reason string  `json:"reason,omitempty"`
}

// ListPaymentsFilter narrows payment listings
type ListPaymentsFilter struct {
	Status  PaymentStatus
	Channel Channel
	From    *time.Time
	To      *time.Time
	Cursor  uuid.UUID
	Limit   int
}
