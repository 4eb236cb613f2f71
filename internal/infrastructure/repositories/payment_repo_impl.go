package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/infrastructure/models"
)

// PaymentRepository implements payment data operations
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create creates a new payment
func (r *PaymentRepository) Create(ctx context.Context, payment *entities.Payment) error {
	m := r.toModel(payment)

	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	// Caller needs the persisted ID for subsequent FK inserts in the same tx
	payment.ID = m.ID
	payment.CreatedAt = m.CreatedAt
	payment.UpdatedAt = m.UpdatedAt
	return nil
}

// GetByID gets a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Payment, error) {
	var m models.Payment
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetByReference gets a payment by its public reference, scoped by merchant
func (r *PaymentRepository) GetByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*entities.Payment, error) {
	var m models.Payment
	db := GetDB(ctx, r.db)
	q := db.WithContext(ctx).Where("reference = ?", reference)
	if merchantID != uuid.Nil {
		q = q.Where("merchant_id = ?", merchantID)
	}
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetByProviderTransactionID locates the payment a provider callback refers to
func (r *PaymentRepository) GetByProviderTransactionID(ctx context.Context, channel entities.Channel, providerTxID string) (*entities.Payment, error) {
	var m models.Payment
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("channel = ? AND provider_transaction_id = ?", channel, providerTxID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// ListByMerchant returns one page of payments, newest first. The cursor is the
// id of the last row of the previous page; rows are keyed by UUIDv7 so id
// order matches creation order.
func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, filter entities.ListPaymentsFilter) ([]*entities.Payment, error) {
	q := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("id DESC").
		Limit(filter.Limit)

	if filter.Cursor != uuid.Nil {
		q = q.Where("id < ?", filter.Cursor)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		q = q.Where("channel = ?", filter.Channel)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}

	var ms []models.Payment
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}

	payments := make([]*entities.Payment, 0, len(ms))
	for i := range ms {
		payments = append(payments, r.toEntity(&ms[i]))
	}
	return payments, nil
}

// Update persists all mutable fields of a payment
func (r *PaymentRepository) Update(ctx context.Context, payment *entities.Payment) error {
	m := r.toModel(payment)
	m.UpdatedAt = time.Now()

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]interface{}{
			"status":          m.Status,
			"customer_id":     m.CustomerID,
			"net_amount":      m.NetAmount,
			"refunded_amount": m.RefundedAmount,
			"failure_reason":  m.FailureReason,
			"completed_at":    m.CompletedAt,
			"failed_at":       m.FailedAt,
			"updated_at":      m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// UpdateStatus sets only the payment status
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.PaymentStatus) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// MarkProcessing records the provider handle issued at dispatch. The status
// guard keeps a late worker from clobbering a payment a callback already
// advanced.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id uuid.UUID, providerTxID, redirectURL string) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, entities.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":                  entities.PaymentStatusProcessing,
			"provider_transaction_id": providerTxID,
			"redirect_url":            redirectURL,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ApplyRefund adds to refunded_amount under an optimistic guard on the
// previously observed value, so concurrent refunds cannot double-apply.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, id uuid.UUID, observedRefunded, amount float64, status entities.PaymentStatus) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND refunded_amount = ?", id, observedRefunded).
		Updates(map[string]interface{}{
			"refunded_amount": observedRefunded + amount,
			"status":          status,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrInvalidTransition
	}
	return nil
}

// ExpirePending marks pending payments past their expiry as expired
func (r *PaymentRepository) ExpirePending(ctx context.Context, limit int) (int64, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND expires_at < ?", entities.PaymentStatusPending, time.Now()).
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id IN ? AND status = ?", ids, entities.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":     entities.PaymentStatusExpired,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *PaymentRepository) toModel(p *entities.Payment) *models.Payment {
	return &models.Payment{
		ID:                    p.ID,
		Reference:             p.Reference,
		MerchantID:            p.MerchantID,
		CustomerID:            p.CustomerID,
		Channel:               string(p.Channel),
		Status:                string(p.Status),
		Amount:                p.Amount,
		Currency:              string(p.Currency),
		FeeRate:               p.FeeRate,
		FeeAmount:             p.FeeAmount,
		NetAmount:             p.NetAmount,
		RefundedAmount:        p.RefundedAmount,
		ProviderTransactionID: p.ProviderTransactionID.Ptr(),
		RedirectURL:           p.RedirectURL.Ptr(),
		IdempotencyKey:        p.IdempotencyKey.Ptr(),
		OrderID:               p.OrderID.Ptr(),
		CustomerEmail:         p.CustomerEmail.Ptr(),
		CustomerPhone:         p.CustomerPhone.Ptr(),
		CustomerName:          p.CustomerName.Ptr(),
		Description:           p.Description.Ptr(),
		Metadata:              p.Metadata.Ptr(),
		FailureReason:         p.FailureReason.Ptr(),
		ExpiresAt:             p.ExpiresAt,
		CompletedAt:           p.CompletedAt,
		FailedAt:              p.FailedAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

func (r *PaymentRepository) toEntity(m *models.Payment) *entities.Payment {
	return &entities.Payment{
		ID:                    m.ID,
		Reference:             m.Reference,
		MerchantID:            m.MerchantID,
		CustomerID:            m.CustomerID,
		Channel:               entities.Channel(m.Channel),
		Status:                entities.PaymentStatus(m.Status),
		Amount:                m.Amount,
		Currency:              entities.Currency(m.Currency),
		FeeRate:               m.FeeRate,
		FeeAmount:             m.FeeAmount,
		NetAmount:             m.NetAmount,
		RefundedAmount:        m.RefundedAmount,
		ProviderTransactionID: null.StringFromPtr(m.ProviderTransactionID),
		RedirectURL:           null.StringFromPtr(m.RedirectURL),
		IdempotencyKey:        null.StringFromPtr(m.IdempotencyKey),
		OrderID:               null.StringFromPtr(m.OrderID),
		CustomerEmail:         null.StringFromPtr(m.CustomerEmail),
		CustomerPhone:         null.StringFromPtr(m.CustomerPhone),
		CustomerName:          null.StringFromPtr(m.CustomerName),
		Description:           null.StringFromPtr(m.Description),
		Metadata:              null.StringFromPtr(m.Metadata),
		FailureReason:         null.StringFromPtr(m.FailureReason),
		ExpiresAt:             m.ExpiresAt,
		CompletedAt:           m.CompletedAt,
		FailedAt:              m.FailedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}
