package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dhecash.backend/internal/domain/entities"
)

const stripeAPIBase = "https://api.stripe.com"

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	GatewayURL    string
}

// StripeAdapter implements PaymentProvider against the Stripe PaymentIntents API
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

// NewStripeAdapter creates a Stripe adapter
func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = stripeAPIBase
	}
	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *StripeAdapter) Name() entities.Channel {
	return entities.ChannelStripe
}

func (a *StripeAdapter) configured() bool {
	return a.cfg.SecretKey != ""
}

// CreatePayment creates a PaymentIntent. Stripe amounts are integer cents.
func (a *StripeAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", int64(math.Round(req.Amount*100))))
	form.Set("currency", strings.ToLower(string(req.Currency)))
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("metadata[payment_ref]", req.PaymentRef)
	if req.Email != "" {
		form.Set("receipt_email", req.Email)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}

	var out stripePaymentIntent
	if err := a.do(ctx, http.MethodPost, "/v1/payment_intents", form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: create response missing intent id", ErrProviderError)
	}

	redirect := ""
	if a.cfg.GatewayURL != "" {
		redirect = a.cfg.GatewayURL + "/v1/checkout/" + url.PathEscape(req.PaymentRef)
	}

	return &CreateResult{
		ProviderTxID: out.ID,
		RedirectURL:  redirect,
		Reference:    out.ID,
	}, nil
}

func (a *StripeAdapter) GetStatus(ctx context.Context, providerTxID string) (*StatusResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	var out stripePaymentIntent
	if err := a.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(providerTxID), nil, &out); err != nil {
		return nil, err
	}

	return &StatusResult{Status: stripeIntentStatus(out.Status)}, nil
}

func (a *StripeAdapter) Refund(ctx context.Context, providerTxID string, amount float64) (*RefundResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	form := url.Values{}
	form.Set("payment_intent", providerTxID)
	form.Set("amount", fmt.Sprintf("%d", int64(math.Round(amount*100))))

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/refunds", form, &out); err != nil {
		return nil, err
	}

	return &RefundResult{RefundID: out.ID, Status: out.Status}, nil
}

// VerifyCallback checks the stripe-signature header: HMAC-SHA256 over
// "{timestamp}.{raw body}" keyed with the endpoint's webhook secret.
func (a *StripeAdapter) VerifyCallback(rawBody []byte, headers http.Header) (*CallbackEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, ErrProviderUnavailable
	}

	header := headers.Get("stripe-signature")
	if header == "" {
		return nil, fmt.Errorf("%w: missing stripe-signature header", ErrBadCallback)
	}

	timestamp, signatures := parseStripeSignature(header)
	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("%w: malformed stripe-signature header", ErrBadCallback)
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: signature mismatch", ErrBadCallback)
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed event body", ErrBadCallback)
	}

	return stripeEvent(event.Type, event.Data.Object)
}

func stripeEvent(eventType string, object json.RawMessage) (*CallbackEvent, error) {
	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripePaymentIntent
		if err := json.Unmarshal(object, &intent); err != nil {
			return nil, fmt.Errorf("%w: malformed payment_intent object", ErrBadCallback)
		}
		if intent.ID == "" {
			return nil, fmt.Errorf("%w: event object missing intent id", ErrBadCallback)
		}

		ev := &CallbackEvent{
			ProviderTxID: intent.ID,
			OrderID:      intent.Metadata["order_id"],
			EventType:    eventType,
			Amount:       float64(intent.Amount) / 100,
		}
		switch eventType {
		case "payment_intent.succeeded":
			ev.Status = entities.PaymentStatusCompleted
		case "payment_intent.payment_failed":
			ev.Status = entities.PaymentStatusFailed
			if intent.LastPaymentError != nil {
				ev.FailureReason = intent.LastPaymentError.Message
			}
		case "payment_intent.canceled":
			ev.Status = entities.PaymentStatusCancelled
		}
		return ev, nil

	case "charge.refunded":
		var charge struct {
			PaymentIntent  string `json:"payment_intent"`
			AmountRefunded int64  `json:"amount_refunded"`
		}
		if err := json.Unmarshal(object, &charge); err != nil {
			return nil, fmt.Errorf("%w: malformed charge object", ErrBadCallback)
		}
		if charge.PaymentIntent == "" {
			return nil, fmt.Errorf("%w: charge missing payment_intent", ErrBadCallback)
		}
		return &CallbackEvent{
			ProviderTxID: charge.PaymentIntent,
			EventType:    eventType,
			Status:       entities.PaymentStatusRefunded,
			Amount:       float64(charge.AmountRefunded) / 100,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unhandled event type %s", ErrBadCallback, eventType)
	}
}

// parseStripeSignature splits "t=...,v1=...,v1=..." into the timestamp and
// the v1 signature candidates.
func parseStripeSignature(header string) (timestamp string, signatures []string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	return timestamp, signatures
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func stripeIntentStatus(s string) entities.PaymentStatus {
	switch s {
	case "succeeded":
		return entities.PaymentStatusCompleted
	case "canceled":
		return entities.PaymentStatusCancelled
	case "requires_payment_method", "requires_confirmation", "requires_action", "processing", "requires_capture":
		return entities.PaymentStatusPending
	default:
		return entities.PaymentStatusPending
	}
}

func (a *StripeAdapter) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	req.SetBasicAuth(a.cfg.SecretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Message != "" {
			return fmt.Errorf("%w: %s returned %d: %s", ErrProviderError, path, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: %s returned %d", ErrProviderError, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrProviderError, path, err)
	}
	return nil
}
