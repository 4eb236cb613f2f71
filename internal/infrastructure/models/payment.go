package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Payment struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Reference             string     `gorm:"type:varchar(32);not null;uniqueIndex"`
	MerchantID            uuid.UUID  `gorm:"type:uuid;not null;index"`
	CustomerID            *uuid.UUID `gorm:"type:uuid;index"` // Nullable until completion
	Channel               string     `gorm:"type:varchar(20);not null;index"`
	Status                string     `gorm:"type:varchar(30);not null;index"`
	Amount                float64    `gorm:"type:decimal(14,2);not null"`
	Currency              string     `gorm:"type:varchar(3);not null"`
	FeeRate               float64    `gorm:"type:decimal(6,4);not null"`
	FeeAmount             float64    `gorm:"type:decimal(14,2);not null"`
	NetAmount             float64    `gorm:"type:decimal(14,2);not null"`
	RefundedAmount        float64    `gorm:"type:decimal(14,2);not null;default:0"`
	ProviderTransactionID *string    `gorm:"type:varchar(255);index"`
	RedirectURL           *string    `gorm:"type:text"`
	IdempotencyKey        *string    `gorm:"type:varchar(255)"`
	OrderID               *string    `gorm:"type:varchar(255);index"`
	CustomerEmail         *string    `gorm:"type:varchar(255)"`
	CustomerPhone         *string    `gorm:"type:varchar(50)"`
	CustomerName          *string    `gorm:"type:varchar(255)"`
	Description           *string    `gorm:"type:text"`
	Metadata              *string    `gorm:"type:jsonb"`
	FailureReason         *string    `gorm:"type:text"`
	ExpiresAt             time.Time  `gorm:"not null;index"`
	CompletedAt           *time.Time
	FailedAt              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             gorm.DeletedAt `gorm:"index"`
}

type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Reference   string    `gorm:"type:varchar(32);not null;uniqueIndex"`
	PaymentID   uuid.UUID `gorm:"type:uuid;not null;index"`
	MerchantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Type        string    `gorm:"type:varchar(20);not null;index"`
	Status      string    `gorm:"type:varchar(20);not null"`
	Amount      float64   `gorm:"type:decimal(14,2);not null"`
	Currency    string    `gorm:"type:varchar(3);not null"`
	Description *string   `gorm:"type:text"`
	CreatedAt   time.Time

	Payment Payment `gorm:"foreignKey:PaymentID"`
}

type Customer struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	MerchantID     uuid.UUID `gorm:"type:uuid;not null;index:idx_customers_identity"`
	Environment    string    `gorm:"type:varchar(10);not null;index:idx_customers_identity"`
	Email          *string   `gorm:"type:varchar(255);index"`
	Phone          *string   `gorm:"type:varchar(50);index"`
	Name           *string   `gorm:"type:varchar(255)"`
	TotalSpent     float64   `gorm:"type:decimal(14,2);not null;default:0"`
	PaymentCount   int       `gorm:"not null;default:0"`
	FirstPaymentAt time.Time
	LastPaymentAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
