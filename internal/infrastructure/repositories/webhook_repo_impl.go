package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/infrastructure/models"
)

// WebhookConfigRepository implements webhook subscription operations
type WebhookConfigRepository struct {
	db *gorm.DB
}

// NewWebhookConfigRepository creates a new webhook config repository
func NewWebhookConfigRepository(db *gorm.DB) *WebhookConfigRepository {
	return &WebhookConfigRepository{db: db}
}

func (r *WebhookConfigRepository) Create(ctx context.Context, config *entities.WebhookConfig) error {
	events, err := json.Marshal(config.Events)
	if err != nil {
		return err
	}
	m := &models.WebhookConfig{
		ID:         config.ID,
		MerchantID: config.MerchantID,
		URL:        config.URL,
		Events:     string(events),
		Secret:     config.Secret,
		IsActive:   config.IsActive,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	config.ID = m.ID
	return nil
}

func (r *WebhookConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookConfig, error) {
	var m models.WebhookConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return configToEntity(&m)
}

func (r *WebhookConfigRepository) ListActiveByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error) {
	return r.list(ctx, merchantID, true)
}

func (r *WebhookConfigRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error) {
	return r.list(ctx, merchantID, false)
}

func (r *WebhookConfigRepository) list(ctx context.Context, merchantID uuid.UUID, activeOnly bool) ([]*entities.WebhookConfig, error) {
	q := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var ms []models.WebhookConfig
	if err := q.Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}

	configs := make([]*entities.WebhookConfig, 0, len(ms))
	for i := range ms {
		c, err := configToEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func (r *WebhookConfigRepository) Delete(ctx context.Context, merchantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		Delete(&models.WebhookConfig{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func configToEntity(m *models.WebhookConfig) (*entities.WebhookConfig, error) {
	var events []string
	if err := json.Unmarshal([]byte(m.Events), &events); err != nil {
		return nil, err
	}
	return &entities.WebhookConfig{
		ID:         m.ID,
		MerchantID: m.MerchantID,
		URL:        m.URL,
		Events:     events,
		Secret:     m.Secret,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

// WebhookLogRepository implements delivery audit log operations
type WebhookLogRepository struct {
	db *gorm.DB
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) Create(ctx context.Context, log *entities.WebhookLog) error {
	m := r.toModel(log)
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	log.ID = m.ID
	return nil
}

func (r *WebhookLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookLog, error) {
	var m models.WebhookLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// RecordAttempt updates the log row after one delivery attempt
func (r *WebhookLogRepository) RecordAttempt(ctx context.Context, log *entities.WebhookLog) error {
	result := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"status":          log.Status,
			"http_status":     log.HTTPStatus,
			"response_body":   log.ResponseBody.Ptr(),
			"attempt_count":   log.AttemptCount,
			"last_attempt_at": log.LastAttemptAt,
			"delivered_at":    log.DeliveredAt,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *WebhookLogRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.WebhookLog, error) {
	var ms []models.WebhookLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	logs := make([]*entities.WebhookLog, 0, len(ms))
	for i := range ms {
		logs = append(logs, r.toEntity(&ms[i]))
	}
	return logs, nil
}

func (r *WebhookLogRepository) toModel(l *entities.WebhookLog) *models.WebhookLog {
	return &models.WebhookLog{
		ID:              l.ID,
		WebhookConfigID: l.WebhookConfigID,
		PaymentID:       l.PaymentID,
		MerchantID:      l.MerchantID,
		EventType:       l.EventType,
		Payload:         l.Payload,
		Status:          string(l.Status),
		HTTPStatus:      l.HTTPStatus,
		ResponseBody:    l.ResponseBody.Ptr(),
		AttemptCount:    l.AttemptCount,
		LastAttemptAt:   l.LastAttemptAt,
		DeliveredAt:     l.DeliveredAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (r *WebhookLogRepository) toEntity(m *models.WebhookLog) *entities.WebhookLog {
	return &entities.WebhookLog{
		ID:              m.ID,
		WebhookConfigID: m.WebhookConfigID,
		PaymentID:       m.PaymentID,
		MerchantID:      m.MerchantID,
		EventType:       m.EventType,
		Payload:         m.Payload,
		Status:          entities.WebhookLogStatus(m.Status),
		HTTPStatus:      m.HTTPStatus,
		ResponseBody:    null.StringFromPtr(m.ResponseBody),
		AttemptCount:    m.AttemptCount,
		LastAttemptAt:   m.LastAttemptAt,
		DeliveredAt:     m.DeliveredAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
