package providers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"dhecash.backend/internal/domain/entities"
)

// Sentinel errors mapping to the client-facing provider error codes. The queue
// treats all of them as retryable.
var (
	ErrProviderTimeout     = errors.New("provider request timed out")
	ErrProviderError       = errors.New("provider request failed")
	ErrProviderUnavailable = errors.New("provider credentials not configured")
	ErrBadCallback         = errors.New("callback verification failed")
)

// CreateRequest carries everything an adapter needs to initiate a payment
type CreateRequest struct {
	Amount      float64
	Currency    entities.Currency
	OrderID     string
	PaymentRef  string
	Phone       string
	Email       string
	Description string
	CallbackURL string
}

// CreateResult is the provider's handle for an initiated payment
type CreateResult struct {
	ProviderTxID string
	RedirectURL  string
	Reference    string
}

// StatusResult is a point-in-time provider view of a payment
type StatusResult struct {
	Status entities.PaymentStatus
	Payer  string
}

// RefundResult is the provider's acknowledgement of a refund
type RefundResult struct {
	RefundID string
	Status   string
}

// CallbackEvent is an authenticated, normalized provider notification
type CallbackEvent struct {
	ProviderTxID  string
	OrderID       string
	EventType     string
	Status        entities.PaymentStatus
	Amount        float64
	FailureReason string
	Payer         string
}

// PaymentProvider is the capability set every processor adapter implements
type PaymentProvider interface {
	Name() entities.Channel
	CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error)
	GetStatus(ctx context.Context, providerTxID string) (*StatusResult, error)
	Refund(ctx context.Context, providerTxID string, amount float64) (*RefundResult, error)
	VerifyCallback(rawBody []byte, headers http.Header) (*CallbackEvent, error)
}

// Registry resolves adapters by channel
type Registry struct {
	adapters map[entities.Channel]PaymentProvider
}

// NewRegistry builds a registry from the given adapters
func NewRegistry(adapters ...PaymentProvider) *Registry {
	m := make(map[entities.Channel]PaymentProvider, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a channel
func (r *Registry) Get(channel entities.Channel) (PaymentProvider, error) {
	a, ok := r.adapters[channel]
	if !ok {
		return nil, ErrProviderUnavailable
	}
	return a, nil
}

// classifyTransport folds a transport error into the sentinel taxonomy
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrProviderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrProviderTimeout
	}
	return ErrProviderError
}

