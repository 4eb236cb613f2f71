package usecases

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/domain/repositories"
	"dhecash.backend/internal/infrastructure/providers"
	"dhecash.backend/internal/metrics"
	"dhecash.backend/pkg/logger"
)

// statusApplier is the slice of the payment usecase the reconciler needs
type statusApplier interface {
	ApplyProviderStatus(ctx context.Context, paymentID uuid.UUID, event *providers.CallbackEvent) error
}

// CallbackUsecase reconciles inbound provider callbacks against payments
type CallbackUsecase struct {
	registry    *providers.Registry
	paymentRepo repositories.PaymentRepository
	applier     statusApplier
}

// NewCallbackUsecase creates a new callback usecase
func NewCallbackUsecase(
	registry *providers.Registry,
	paymentRepo repositories.PaymentRepository,
	applier statusApplier,
) *CallbackUsecase {
	return &CallbackUsecase{
		registry:    registry,
		paymentRepo: paymentRepo,
		applier:     applier,
	}
}

// HandleCallback authenticates one provider notification and applies it.
// Unmatched events are acknowledged and dropped: providers retry on non-2xx,
// and a callback for a payment this gateway never issued cannot become one.
func (u *CallbackUsecase) HandleCallback(ctx context.Context, channel entities.Channel, rawBody []byte, headers http.Header) error {
	if !channel.Valid() {
		return domainerrors.Validation("unknown callback channel")
	}

	adapter, err := u.registry.Get(channel)
	if err != nil {
		return domainerrors.ProviderUnavailable(err)
	}

	event, err := adapter.VerifyCallback(rawBody, headers)
	if err != nil {
		metrics.CallbacksReceived.WithLabelValues(string(channel), "rejected").Inc()
		logger.Warn(ctx, "rejected provider callback",
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		if errors.Is(err, providers.ErrBadCallback) {
			return domainerrors.Validation("callback verification failed")
		}
		return domainerrors.ProviderUnavailable(err)
	}

	payment, err := u.paymentRepo.GetByProviderTransactionID(ctx, channel, event.ProviderTxID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			metrics.CallbacksReceived.WithLabelValues(string(channel), "unmatched").Inc()
			logger.Warn(ctx, "callback matched no payment",
				zap.String("channel", string(channel)),
				zap.String("provider_tx_id", event.ProviderTxID),
				zap.String("event_type", event.EventType),
			)
			return nil
		}
		return domainerrors.InternalError(err)
	}

	if err := u.applier.ApplyProviderStatus(ctx, payment.ID, event); err != nil {
		return domainerrors.InternalError(err)
	}

	metrics.CallbacksReceived.WithLabelValues(string(channel), "processed").Inc()
	logger.Info(ctx, "provider callback applied",
		zap.String("channel", string(channel)),
		zap.String("payment_reference", payment.Reference),
		zap.String("event_type", event.EventType),
	)
	return nil
}
