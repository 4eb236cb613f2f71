package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/domain/repositories"
	"dhecash.backend/internal/infrastructure/providers"
	"dhecash.backend/internal/infrastructure/queue"
	"dhecash.backend/internal/metrics"
	"dhecash.backend/pkg/logger"
	"dhecash.backend/pkg/reference"
)

// paymentQueueByChannel routes a payment job to its channel queue
var paymentQueueByChannel = map[entities.Channel]string{
	entities.ChannelMonCash: queue.QueuePaymentsMonCash,
	entities.ChannelNatCash: queue.QueuePaymentsNatCash,
	entities.ChannelStripe:  queue.QueuePaymentsStripe,
}

// ProcessPaymentPayload is the job payload for provider dispatch
type ProcessPaymentPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

// jobEnqueuer is the slice of the queue the usecase needs
type jobEnqueuer interface {
	Enqueue(ctx context.Context, name string, job *queue.Job) error
}

// PaymentUsecase handles the payment lifecycle: ingestion, provider
// dispatch, reconciliation and refunds.
type PaymentUsecase struct {
	paymentRepo  repositories.PaymentRepository
	txnRepo      repositories.TransactionRepository
	customerRepo repositories.CustomerRepository
	merchantRepo repositories.MerchantRepository
	uow          repositories.UnitOfWork
	registry     *providers.Registry
	jobs         jobEnqueuer
	dispatcher   *DispatchUsecase
	// callbackBaseURL is this gateway's public base URL, used to build
	// provider callback endpoints
	callbackBaseURL string
}

// NewPaymentUsecase creates a new payment usecase
func NewPaymentUsecase(
	paymentRepo repositories.PaymentRepository,
	txnRepo repositories.TransactionRepository,
	customerRepo repositories.CustomerRepository,
	merchantRepo repositories.MerchantRepository,
	uow repositories.UnitOfWork,
	registry *providers.Registry,
	jobs jobEnqueuer,
	dispatcher *DispatchUsecase,
	callbackBaseURL string,
) *PaymentUsecase {
	return &PaymentUsecase{
		paymentRepo:     paymentRepo,
		txnRepo:         txnRepo,
		customerRepo:    customerRepo,
		merchantRepo:    merchantRepo,
		uow:             uow,
		registry:        registry,
		jobs:            jobs,
		dispatcher:      dispatcher,
		callbackBaseURL: callbackBaseURL,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// CreatePayment validates and persists a payment in pending state, then
// enqueues it for provider dispatch. The provider is never called on the
// request path.
func (u *PaymentUsecase) CreatePayment(ctx context.Context, merchantID uuid.UUID, idempotencyKey string, input *entities.CreatePaymentInput) (*entities.Payment, error) {
	if !input.Channel.Valid() {
		return nil, domainerrors.Validation("unsupported channel").WithDetails(map[string]interface{}{
			"channel": input.Channel,
		})
	}
	if !input.Currency.Valid() {
		return nil, domainerrors.Validation("unsupported currency").WithDetails(map[string]interface{}{
			"currency": input.Currency,
		})
	}
	if input.Amount <= 0 {
		return nil, domainerrors.Validation("amount must be positive")
	}

	ref, err := reference.New(reference.KindPayment)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	amount := round2(input.Amount)
	feeRate := entities.FeeRates[input.Channel]
	feeAmount := round2(amount * feeRate)

	var metadata null.String
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, domainerrors.Validation("metadata is not serializable")
		}
		metadata = null.StringFrom(string(raw))
	}

	payment := &entities.Payment{
		ID:             id,
		Reference:      ref,
		MerchantID:     merchantID,
		Channel:        input.Channel,
		Status:         entities.PaymentStatusPending,
		Amount:         amount,
		Currency:       input.Currency,
		FeeRate:        feeRate,
		FeeAmount:      feeAmount,
		NetAmount:      round2(amount - feeAmount),
		IdempotencyKey: null.NewString(idempotencyKey, idempotencyKey != ""),
		OrderID:        null.NewString(input.OrderID, input.OrderID != ""),
		CustomerEmail:  null.NewString(input.CustomerEmail, input.CustomerEmail != ""),
		CustomerPhone:  null.NewString(input.CustomerPhone, input.CustomerPhone != ""),
		CustomerName:   null.NewString(input.CustomerName, input.CustomerName != ""),
		Description:    null.NewString(input.Description, input.Description != ""),
		Metadata:       metadata,
		ExpiresAt:      time.Now().Add(entities.PaymentExpiry),
	}

	if err := u.paymentRepo.Create(ctx, payment); err != nil {
		return nil, domainerrors.InternalError(err)
	}

	job, err := queue.NewJob(queue.JobTypeProcessPayment, ProcessPaymentPayload{PaymentID: payment.ID})
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if err := u.jobs.Enqueue(ctx, paymentQueueByChannel[payment.Channel], job); err != nil {
		// The payment row exists; the expiry sweeper will fail it if dispatch
		// never happens
		logger.Error(ctx, "enqueueing payment dispatch failed",
			zap.String("payment_reference", payment.Reference),
			zap.Error(err),
		)
		return nil, domainerrors.InternalError(err)
	}

	metrics.PaymentsCreated.WithLabelValues(string(payment.Channel)).Inc()
	logger.Info(ctx, "payment created",
		zap.String("payment_reference", payment.Reference),
		zap.String("channel", string(payment.Channel)),
		zap.Float64("amount", payment.Amount),
		zap.String("currency", string(payment.Currency)),
	)
	return payment, nil
}

// GetPayment fetches one payment owned by the merchant
func (u *PaymentUsecase) GetPayment(ctx context.Context, merchantID uuid.UUID, ref string) (*entities.Payment, error) {
	payment, err := u.paymentRepo.GetByReference(ctx, merchantID, ref)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.PaymentNotFound("payment not found")
		}
		return nil, domainerrors.InternalError(err)
	}
	return payment, nil
}

// GetCheckout resolves a payment for the unauthenticated hosted checkout
// page. References carry enough entropy to be unguessable, so no merchant
// scoping applies here.
func (u *PaymentUsecase) GetCheckout(ctx context.Context, ref string) (*entities.Payment, error) {
	payment, err := u.paymentRepo.GetByReference(ctx, uuid.Nil, ref)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.PaymentNotFound("payment not found")
		}
		return nil, domainerrors.InternalError(err)
	}
	// The sweeper runs on a ticker, so a pending payment can sit past its
	// window before the row flips; the page must refuse it either way.
	if payment.Status == entities.PaymentStatusExpired ||
		(payment.Status == entities.PaymentStatusPending && time.Now().After(payment.ExpiresAt)) {
		return nil, domainerrors.PaymentExpired("payment window has expired")
	}
	return payment, nil
}

// ListPayments returns a cursor page of the merchant's payments, newest first
func (u *PaymentUsecase) ListPayments(ctx context.Context, merchantID uuid.UUID, filter entities.ListPaymentsFilter) ([]*entities.Payment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domainerrors.Validation("unknown status filter")
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		return nil, domainerrors.Validation("unknown channel filter")
	}
	payments, err := u.paymentRepo.ListByMerchant(ctx, merchantID, filter)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return payments, nil
}

// ListTransactions returns the ledger entries of one payment
func (u *PaymentUsecase) ListTransactions(ctx context.Context, merchantID uuid.UUID, ref string) ([]*entities.Transaction, error) {
	payment, err := u.GetPayment(ctx, merchantID, ref)
	if err != nil {
		return nil, err
	}
	txns, err := u.txnRepo.ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	return txns, nil
}

// ProcessPaymentJob dispatches one pending payment to its provider. Called
// from the queue worker; errors bubble up to trigger a retry.
func (u *PaymentUsecase) ProcessPaymentJob(ctx context.Context, job *queue.Job) error {
	var payload ProcessPaymentPayload
	if err := job.Bind(&payload); err != nil {
		return err
	}

	payment, err := u.paymentRepo.GetByID(ctx, payload.PaymentID)
	if err != nil {
		return err
	}
	// Redelivered jobs are no-ops once the payment left pending
	if payment.Status != entities.PaymentStatusPending {
		return nil
	}

	adapter, err := u.registry.Get(payment.Channel)
	if err != nil {
		return err
	}

	// The merchant's own order id goes to the provider when present; the
	// reference only stands in for merchants that did not supply one.
	orderID := payment.Reference
	if payment.OrderID.Valid {
		orderID = payment.OrderID.String
	}

	result, err := adapter.CreatePayment(ctx, &providers.CreateRequest{
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		OrderID:     orderID,
		PaymentRef:  payment.Reference,
		Phone:       payment.CustomerPhone.String,
		Email:       payment.CustomerEmail.String,
		Description: payment.Description.String,
		CallbackURL: u.callbackBaseURL + "/v1/webhooks/" + string(payment.Channel),
	})
	if err != nil {
		return err
	}

	if err := u.paymentRepo.MarkProcessing(ctx, payment.ID, result.ProviderTxID, result.RedirectURL); err != nil {
		return err
	}

	metrics.PaymentTransitions.WithLabelValues(string(entities.PaymentStatusProcessing)).Inc()
	logger.Info(ctx, "payment dispatched to provider",
		zap.String("payment_reference", payment.Reference),
		zap.String("channel", string(payment.Channel)),
		zap.String("provider_tx_id", result.ProviderTxID),
	)
	return nil
}

// MarkDispatchFailed fails a payment whose dispatch job exhausted its
// retries.
func (u *PaymentUsecase) MarkDispatchFailed(ctx context.Context, paymentID uuid.UUID, reason string) {
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		payment, err := u.paymentRepo.GetByID(u.uow.WithLock(ctx), paymentID)
		if err != nil {
			return err
		}
		if payment.Status != entities.PaymentStatusPending {
			return nil
		}

		now := time.Now()
		payment.Status = entities.PaymentStatusFailed
		payment.FailedAt = &now
		payment.FailureReason = null.StringFrom(reason)
		if err := u.paymentRepo.Update(ctx, payment); err != nil {
			return err
		}

		metrics.PaymentTransitions.WithLabelValues(string(entities.PaymentStatusFailed)).Inc()
		return u.dispatcher.Fanout(ctx, payment, entities.EventPaymentFailed)
	})
	if err != nil {
		logger.Error(ctx, "failing undispatchable payment failed",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err),
		)
	}
}

// ApplyProviderStatus advances a payment's lifecycle from an authenticated
// provider event. Replayed events are no-ops; conflicting transitions on a
// terminal payment are logged and dropped.
func (u *PaymentUsecase) ApplyProviderStatus(ctx context.Context, paymentID uuid.UUID, event *providers.CallbackEvent) error {
	return u.uow.Do(ctx, func(ctx context.Context) error {
		payment, err := u.paymentRepo.GetByID(u.uow.WithLock(ctx), paymentID)
		if err != nil {
			return err
		}

		switch event.Status {
		case entities.PaymentStatusCompleted:
			return u.complete(ctx, payment)
		case entities.PaymentStatusFailed:
			return u.failOrCancel(ctx, payment, entities.PaymentStatusFailed, event.FailureReason)
		case entities.PaymentStatusCancelled:
			return u.failOrCancel(ctx, payment, entities.PaymentStatusCancelled, "")
		case entities.PaymentStatusRefunded:
			// Provider-side refund (e.g. issued from the processor dashboard);
			// event.Amount is the cumulative refunded total
			return u.reconcileProviderRefund(ctx, payment, event.Amount)
		default:
			logger.Warn(ctx, "ignoring provider event with unhandled status",
				zap.String("payment_reference", payment.Reference),
				zap.String("event_type", event.EventType),
				zap.String("status", string(event.Status)),
			)
			return nil
		}
	})
}

func (u *PaymentUsecase) complete(ctx context.Context, payment *entities.Payment) error {
	if payment.Status == entities.PaymentStatusCompleted {
		return nil
	}
	if payment.Status != entities.PaymentStatusPending && payment.Status != entities.PaymentStatusProcessing {
		logger.Warn(ctx, "dropping completion event for payment in conflicting state",
			zap.String("payment_reference", payment.Reference),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}

	now := time.Now()
	payment.Status = entities.PaymentStatusCompleted
	payment.CompletedAt = &now

	if customerID := u.upsertCustomer(ctx, payment, now); customerID != nil {
		payment.CustomerID = customerID
	}

	if err := u.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	txnRef, err := reference.New(reference.KindTransaction)
	if err != nil {
		return err
	}
	txn := &entities.Transaction{
		ID:         uuid.New(),
		Reference:  txnRef,
		PaymentID:  payment.ID,
		MerchantID: payment.MerchantID,
		Type:       entities.TransactionTypeCredit,
		Status:     entities.TransactionStatusSucceeded,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
	}
	if err := u.txnRepo.Create(ctx, txn); err != nil {
		return err
	}

	metrics.PaymentTransitions.WithLabelValues(string(entities.PaymentStatusCompleted)).Inc()
	logger.Info(ctx, "payment completed",
		zap.String("payment_reference", payment.Reference),
		zap.Float64("amount", payment.Amount),
	)
	return u.dispatcher.Fanout(ctx, payment, entities.EventPaymentSucceeded)
}

func (u *PaymentUsecase) failOrCancel(ctx context.Context, payment *entities.Payment, target entities.PaymentStatus, reason string) error {
	if payment.Status == target {
		return nil
	}
	if payment.Status != entities.PaymentStatusPending && payment.Status != entities.PaymentStatusProcessing {
		logger.Warn(ctx, "dropping provider event for payment in conflicting state",
			zap.String("payment_reference", payment.Reference),
			zap.String("status", string(payment.Status)),
			zap.String("target", string(target)),
		)
		return nil
	}

	now := time.Now()
	payment.Status = target
	if target == entities.PaymentStatusFailed {
		payment.FailedAt = &now
		payment.FailureReason = null.NewString(reason, reason != "")
	}
	if err := u.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	metrics.PaymentTransitions.WithLabelValues(string(target)).Inc()

	eventType := entities.EventPaymentFailed
	if target == entities.PaymentStatusCancelled {
		eventType = entities.EventPaymentCancelled
	}
	return u.dispatcher.Fanout(ctx, payment, eventType)
}

// reconcileProviderRefund folds a provider-initiated refund into the ledger.
// cumulativeRefunded is the provider's total; only the delta beyond what is
// already recorded gets applied.
func (u *PaymentUsecase) reconcileProviderRefund(ctx context.Context, payment *entities.Payment, cumulativeRefunded float64) error {
	if !payment.Refundable() {
		logger.Warn(ctx, "dropping refund event for non-refundable payment",
			zap.String("payment_reference", payment.Reference),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}

	delta := round2(cumulativeRefunded - payment.RefundedAmount)
	if delta <= 0 {
		return nil
	}
	if payment.RefundedAmount+delta > payment.Amount+0.001 {
		logger.Warn(ctx, "provider refund exceeds captured amount, dropping",
			zap.String("payment_reference", payment.Reference),
			zap.Float64("cumulative", cumulativeRefunded),
		)
		return nil
	}

	return u.recordRefund(ctx, payment, delta, "provider-initiated refund")
}

// recordRefund applies one refund amount to the payment and appends the
// ledger entry. Runs inside the caller's transaction.
func (u *PaymentUsecase) recordRefund(ctx context.Context, payment *entities.Payment, amount float64, description string) error {
	newTotal := round2(payment.RefundedAmount + amount)
	status := entities.PaymentStatusPartiallyRefunded
	if newTotal >= payment.Amount-0.001 {
		status = entities.PaymentStatusRefunded
	}

	if err := u.paymentRepo.ApplyRefund(ctx, payment.ID, payment.RefundedAmount, amount, status); err != nil {
		return err
	}

	txnRef, err := reference.New(reference.KindTransaction)
	if err != nil {
		return err
	}
	txn := &entities.Transaction{
		ID:          uuid.New(),
		Reference:   txnRef,
		PaymentID:   payment.ID,
		MerchantID:  payment.MerchantID,
		Type:        entities.TransactionTypeRefund,
		Status:      entities.TransactionStatusSucceeded,
		Amount:      amount,
		Currency:    payment.Currency,
		Description: null.StringFrom(description),
	}
	if err := u.txnRepo.Create(ctx, txn); err != nil {
		return err
	}

	payment.RefundedAmount = newTotal
	payment.Status = status

	metrics.PaymentTransitions.WithLabelValues(string(status)).Inc()
	metrics.RefundsProcessed.WithLabelValues(string(payment.Channel)).Inc()
	logger.Info(ctx, "refund recorded",
		zap.String("payment_reference", payment.Reference),
		zap.Float64("amount", amount),
		zap.Float64("refunded_total", newTotal),
	)
	return u.dispatcher.Fanout(ctx, payment, entities.EventPaymentRefunded)
}

// Refund refunds part or all of a completed payment. The provider refund
// runs first; the ledger write happens only after the provider accepts.
func (u *PaymentUsecase) Refund(ctx context.Context, merchantID uuid.UUID, ref string, input *entities.RefundInput) (*entities.Payment, error) {
	payment, err := u.GetPayment(ctx, merchantID, ref)
	if err != nil {
		return nil, err
	}

	amount := round2(input.Amount)
	if amount <= 0 {
		return nil, domainerrors.Validation("refund amount must be positive")
	}
	if !payment.Refundable() {
		return nil, domainerrors.RefundNotAllowed("payment is not in a refundable state")
	}
	remaining := round2(payment.Amount - payment.RefundedAmount)
	if amount > remaining+0.001 {
		return nil, domainerrors.RefundExceedsAmount("refund exceeds the remaining refundable amount").WithDetails(map[string]interface{}{
			"remaining": remaining,
		})
	}

	adapter, err := u.registry.Get(payment.Channel)
	if err != nil {
		return nil, domainerrors.ProviderUnavailable(err)
	}
	if _, err := adapter.Refund(ctx, payment.ProviderTransactionID.String, amount); err != nil {
		return nil, mapProviderError(err)
	}

	description := input.Reason
	if description == "" {
		description = "merchant refund"
	}

	err = u.uow.Do(ctx, func(ctx context.Context) error {
		// Re-read under lock; a concurrent refund may have landed since the
		// precheck
		fresh, err := u.paymentRepo.GetByID(u.uow.WithLock(ctx), payment.ID)
		if err != nil {
			return err
		}
		if !fresh.Refundable() {
			return domainerrors.RefundNotAllowed("payment is not in a refundable state")
		}
		if amount > round2(fresh.Amount-fresh.RefundedAmount)+0.001 {
			return domainerrors.RefundExceedsAmount("refund exceeds the remaining refundable amount")
		}
		if err := u.recordRefund(ctx, fresh, amount, description); err != nil {
			return err
		}
		payment = fresh
		return nil
	})
	if err != nil {
		var appErr *domainerrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, domainerrors.InternalError(err)
	}
	return payment, nil
}

// upsertCustomer attaches the payment to a customer profile, creating one on
// first sight of the identity. Failures only cost the aggregate, never the
// payment, so they are logged and swallowed.
func (u *PaymentUsecase) upsertCustomer(ctx context.Context, payment *entities.Payment, at time.Time) *uuid.UUID {
	email := payment.CustomerEmail.String
	phone := payment.CustomerPhone.String
	if email == "" && phone == "" {
		return nil
	}

	merchant, err := u.merchantRepo.GetByID(ctx, payment.MerchantID)
	if err != nil {
		logger.Error(ctx, "loading merchant for customer upsert failed", zap.Error(err))
		return nil
	}

	customer, err := u.customerRepo.FindByIdentity(ctx, payment.MerchantID, merchant.Environment, email, phone)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		logger.Error(ctx, "customer lookup failed", zap.Error(err))
		return nil
	}

	if customer == nil {
		customer = &entities.Customer{
			ID:             uuid.New(),
			MerchantID:     payment.MerchantID,
			Environment:    merchant.Environment,
			Email:          payment.CustomerEmail,
			Phone:          payment.CustomerPhone,
			Name:           payment.CustomerName,
			TotalSpent:     payment.Amount,
			PaymentCount:   1,
			FirstPaymentAt: at,
			LastPaymentAt:  at,
		}
		if err := u.customerRepo.Create(ctx, customer); err != nil {
			logger.Error(ctx, "customer create failed", zap.Error(err))
			return nil
		}
		return &customer.ID
	}

	customer.TotalSpent = round2(customer.TotalSpent + payment.Amount)
	customer.PaymentCount++
	customer.LastPaymentAt = at
	if !customer.Name.Valid && payment.CustomerName.Valid {
		customer.Name = payment.CustomerName
	}
	if err := u.customerRepo.Update(ctx, customer); err != nil {
		logger.Error(ctx, "customer update failed", zap.Error(err))
		return nil
	}
	return &customer.ID
}

// mapProviderError converts adapter sentinel errors to client-facing codes
func mapProviderError(err error) *domainerrors.AppError {
	switch {
	case errors.Is(err, providers.ErrProviderTimeout):
		return domainerrors.ProviderTimeout(err)
	case errors.Is(err, providers.ErrProviderUnavailable):
		return domainerrors.ProviderUnavailable(err)
	default:
		return domainerrors.ProviderError(err)
	}
}
