package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
)

func newTestPayment(merchantID uuid.UUID) *entities.Payment {
	return &entities.Payment{
		ID:         uuid.Must(uuid.NewV7()),
		Reference:  "pay_" + uuid.NewString()[:12],
		MerchantID: merchantID,
		Channel:    entities.ChannelMonCash,
		Status:     entities.PaymentStatusPending,
		Amount:     1000,
		Currency:   entities.CurrencyHTG,
		FeeRate:    0.025,
		FeeAmount:  25,
		NetAmount:  975,
		ExpiresAt:  time.Now().Add(entities.PaymentExpiry),
		CreatedAt:  time.Now(),
	}
}

func TestPaymentRepository_CreateAndFinders(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	p := newTestPayment(merchantID)
	p.CustomerEmail = null.StringFrom("payer@example.com")
	require.NoError(t, repo.Create(ctx, p))

	byID, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Reference, byID.Reference)
	assert.Equal(t, "payer@example.com", byID.CustomerEmail.String)

	byRef, err := repo.GetByReference(ctx, merchantID, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byRef.ID)

	// Unscoped lookup for the hosted checkout page
	public, err := repo.GetByReference(ctx, uuid.Nil, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, p.ID, public.ID)

	// Wrong merchant must not see the payment
	_, err = repo.GetByReference(ctx, uuid.New(), p.Reference)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestPaymentRepository_MarkProcessing(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	p := newTestPayment(uuid.New())
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.MarkProcessing(ctx, p.ID, "MC-42", "https://pay.example/redirect"))

	got, err := repo.GetByProviderTransactionID(ctx, entities.ChannelMonCash, "MC-42")
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentStatusProcessing, got.Status)
	assert.Equal(t, "https://pay.example/redirect", got.RedirectURL.String)

	// Second dispatch attempt finds no pending row
	err = repo.MarkProcessing(ctx, p.ID, "MC-43", "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	// Handle must stay the first one
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "MC-42", got.ProviderTransactionID.String)
}

func TestPaymentRepository_ApplyRefundOptimisticGuard(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	p := newTestPayment(uuid.New())
	p.Status = entities.PaymentStatusCompleted
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.ApplyRefund(ctx, p.ID, 0, 400, entities.PaymentStatusPartiallyRefunded))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 400.0, got.RefundedAmount)
	assert.Equal(t, entities.PaymentStatusPartiallyRefunded, got.Status)

	// Stale observation loses
	err = repo.ApplyRefund(ctx, p.ID, 0, 400, entities.PaymentStatusPartiallyRefunded)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	// Fresh observation wins
	require.NoError(t, repo.ApplyRefund(ctx, p.ID, 400, 600, entities.PaymentStatusRefunded))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.RefundedAmount)
	assert.Equal(t, entities.PaymentStatusRefunded, got.Status)
}

func TestPaymentRepository_ExpirePending(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	overdue := newTestPayment(uuid.New())
	overdue.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, overdue))

	fresh := newTestPayment(uuid.New())
	require.NoError(t, repo.Create(ctx, fresh))

	processing := newTestPayment(uuid.New())
	processing.Status = entities.PaymentStatusProcessing
	processing.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, processing))

	n, err := repo.ExpirePending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentStatusExpired, got.Status)

	got, err = repo.GetByID(ctx, processing.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentStatusProcessing, got.Status)

	// Idempotent on re-run
	n, err = repo.ExpirePending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPaymentRepository_ListByMerchantFiltersAndCursor(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	var refs []string
	for i := 0; i < 5; i++ {
		p := newTestPayment(merchantID)
		if i%2 == 0 {
			p.Channel = entities.ChannelStripe
		}
		require.NoError(t, repo.Create(ctx, p))
		refs = append(refs, p.Reference)
	}
	other := newTestPayment(uuid.New())
	require.NoError(t, repo.Create(ctx, other))

	// Channel filter
	page, err := repo.ListByMerchant(ctx, merchantID, entities.ListPaymentsFilter{Channel: entities.ChannelStripe, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	// Cursor pages descend: first page holds the newest rows
	first, err := repo.ListByMerchant(ctx, merchantID, entities.ListPaymentsFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, refs[4], first[0].Reference)

	second, err := repo.ListByMerchant(ctx, merchantID, entities.ListPaymentsFilter{Limit: 2, Cursor: first[1].ID})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, refs[2], second[0].Reference)

	// Other merchants never leak in
	for _, p := range append(first, second...) {
		assert.NotEqual(t, other.Reference, p.Reference)
	}
}

func TestTransactionRepository_LedgerAndRefundSum(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	paymentID := uuid.Must(uuid.NewV7())
	merchantID := uuid.New()

	credit := &entities.Transaction{
		ID:         uuid.Must(uuid.NewV7()),
		Reference:  "txn_" + uuid.NewString()[:12],
		PaymentID:  paymentID,
		MerchantID: merchantID,
		Type:       entities.TransactionTypeCredit,
		Status:     entities.TransactionStatusSucceeded,
		Amount:     1000,
		Currency:   entities.CurrencyHTG,
		CreatedAt:  time.Now().Add(-2 * time.Second),
	}
	require.NoError(t, repo.Create(ctx, credit))

	for i, amt := range []float64{300, 200} {
		require.NoError(t, repo.Create(ctx, &entities.Transaction{
			ID:         uuid.Must(uuid.NewV7()),
			Reference:  "txn_" + uuid.NewString()[:12],
			PaymentID:  paymentID,
			MerchantID: merchantID,
			Type:       entities.TransactionTypeRefund,
			Status:     entities.TransactionStatusSucceeded,
			Amount:     amt,
			Currency:   entities.CurrencyHTG,
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	ledger, err := repo.ListByPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.Equal(t, entities.TransactionTypeCredit, ledger[0].Type)

	total, err := repo.SumRefundsByPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, total)

	none, err := repo.SumRefundsByPayment(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)
}

func TestCustomerRepository_UpsertFlow(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewCustomerRepository(db)
	ctx := context.Background()

	merchantID := uuid.New()
	now := time.Now()

	_, err := repo.FindByIdentity(ctx, merchantID, "test", "payer@example.com", "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	customer := &entities.Customer{
		ID:             uuid.New(),
		MerchantID:     merchantID,
		Environment:    "test",
		Email:          null.StringFrom("payer@example.com"),
		TotalSpent:     100,
		PaymentCount:   1,
		FirstPaymentAt: now,
		LastPaymentAt:  now,
	}
	require.NoError(t, repo.Create(ctx, customer))

	found, err := repo.FindByIdentity(ctx, merchantID, "test", "payer@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, found.ID)

	// Same identity in another environment is a different customer
	_, err = repo.FindByIdentity(ctx, merchantID, "live", "payer@example.com", "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	found.TotalSpent = 250
	found.PaymentCount = 2
	found.LastPaymentAt = now.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, found))

	again, err := repo.FindByIdentity(ctx, merchantID, "test", "payer@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 250.0, again.TotalSpent)
	assert.Equal(t, 2, again.PaymentCount)
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	createPaymentTables(t, db)
	repo := NewPaymentRepository(db)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	p := newTestPayment(uuid.New())
	err := uow.Do(ctx, func(txCtx context.Context) error {
		return repo.Create(txCtx, p)
	})
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	boom := newTestPayment(uuid.New())
	err = uow.Do(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, boom); err != nil {
			return err
		}
		return domainerrors.ErrInvalidTransition
	})
	require.Error(t, err)
	_, err = repo.GetByID(ctx, boom.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
