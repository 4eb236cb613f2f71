package repositories

import (
	"context"

	"github.com/google/uuid"
	"dhecash.backend/internal/domain/entities"
)

// PaymentRepository defines payment data operations
type PaymentRepository interface {
	Create(ctx context.Context, payment *entities.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Payment, error)
	GetByReference(ctx context.Context, merchantID uuid.UUID, reference string) (*entities.Payment, error)
	GetByProviderTransactionID(ctx context.Context, channel entities.Channel, providerTxID string) (*entities.Payment, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, filter entities.ListPaymentsFilter) ([]*entities.Payment, error)
	Update(ctx context.Context, payment *entities.Payment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.PaymentStatus) error
	// MarkProcessing records the provider handle and redirect URL issued at dispatch
	MarkProcessing(ctx context.Context, id uuid.UUID, providerTxID, redirectURL string) error
	// ApplyRefund adds amount to refunded_amount and sets the new status, guarded
	// by an optimistic check on the previously observed refunded_amount
	ApplyRefund(ctx context.Context, id uuid.UUID, observedRefunded, amount float64, status entities.PaymentStatus) error
	// ExpirePending marks pending payments past their expiry as expired and
	// returns how many rows changed
	ExpirePending(ctx context.Context, limit int) (int64, error)
}

// TransactionRepository defines ledger entry operations
type TransactionRepository interface {
	Create(ctx context.Context, txn *entities.Transaction) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*entities.Transaction, error)
	SumRefundsByPayment(ctx context.Context, paymentID uuid.UUID) (float64, error)
}

// CustomerRepository defines customer data operations
type CustomerRepository interface {
	Create(ctx context.Context, customer *entities.Customer) error
	FindByIdentity(ctx context.Context, merchantID uuid.UUID, environment, email, phone string) (*entities.Customer, error)
	Update(ctx context.Context, customer *entities.Customer) error
}
