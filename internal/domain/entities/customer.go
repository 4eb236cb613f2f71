package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Customer aggregates payment activity for one payer identity, scoped by
// (merchant, environment) and matched on email or phone.
type Customer struct {
	ID             uuid.UUID   `json:"id"`
	MerchantID     uuid.UUID   `json:"-"`
	Environment    string      `json:"environment"`
	Email          null.String `json:"email,omitempty"`
	Phone          null.String `json:"phone,omitempty"`
	Name           null.String `json:"name,omitempty"`
	TotalSpent     float64     `json:"totalSpent"`
	PaymentCount   int         `json:"paymentCount"`
	FirstPaymentAt time.Time   `json:"firstPaymentAt"`
	LastPaymentAt  time.Time   `json:"lastPaymentAt"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}
