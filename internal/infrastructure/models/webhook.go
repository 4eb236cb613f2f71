package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookConfig struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	MerchantID uuid.UUID `gorm:"type:uuid;not null;index"`
	URL        string    `gorm:"type:text;not null"`
	Events     string    `gorm:"type:text;not null"` // JSON array of event types
	Secret     string    `gorm:"type:varchar(255);not null"`
	// No default tag: gorm drops zero-valued fields that carry one, which
	// would persist a disabled config as active.
	IsActive bool `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

type WebhookLog struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	WebhookConfigID uuid.UUID `gorm:"type:uuid;not null;index"`
	PaymentID       uuid.UUID `gorm:"type:uuid;not null;index"`
	MerchantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType       string    `gorm:"type:varchar(50);not null"`
	Payload         string    `gorm:"type:text;not null"`
	Status          string    `gorm:"type:varchar(20);not null;index"`
	HTTPStatus      *int
	ResponseBody    *string `gorm:"type:varchar(500)"`
	AttemptCount    int     `gorm:"not null;default:0"`
	LastAttemptAt   *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
