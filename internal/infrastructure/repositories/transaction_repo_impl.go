package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"dhecash.backend/internal/domain/entities"
	"dhecash.backend/internal/infrastructure/models"
)

// TransactionRepository implements ledger entry operations
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a ledger entry. Entries are immutable; there is no update.
func (r *TransactionRepository) Create(ctx context.Context, txn *entities.Transaction) error {
	m := &models.Transaction{
		ID:          txn.ID,
		Reference:   txn.Reference,
		PaymentID:   txn.PaymentID,
		MerchantID:  txn.MerchantID,
		Type:        string(txn.Type),
		Status:      string(txn.Status),
		Amount:      txn.Amount,
		Currency:    string(txn.Currency),
		Description: txn.Description.Ptr(),
		CreatedAt:   txn.CreatedAt,
	}

	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	txn.ID = m.ID
	return nil
}

// ListByPayment returns ledger entries for one payment, oldest first
func (r *TransactionRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.Transaction, error) {
	var ms []models.Transaction
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	txns := make([]*entities.Transaction, 0, len(ms))
	for i := range ms {
		txns = append(txns, r.toEntity(&ms[i]))
	}
	return txns, nil
}

// SumRefundsByPayment totals all refund entries for a payment
func (r *TransactionRepository) SumRefundsByPayment(ctx context.Context, paymentID uuid.UUID) (float64, error) {
	var total *float64
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("payment_id = ? AND type = ?", paymentID, entities.TransactionTypeRefund).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *TransactionRepository) toEntity(m *models.Transaction) *entities.Transaction {
	return &entities.Transaction{
		ID:          m.ID,
		Reference:   m.Reference,
		PaymentID:   m.PaymentID,
		MerchantID:  m.MerchantID,
		Type:        entities.TransactionType(m.Type),
		Status:      entities.TransactionStatus(m.Status),
		Amount:      m.Amount,
		Currency:    entities.Currency(m.Currency),
		Description: null.StringFromPtr(m.Description),
		CreatedAt:   m.CreatedAt,
	}
}
