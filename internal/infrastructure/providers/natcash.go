package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dhecash.backend/internal/domain/entities"
)

const (
	natcashTokenPath  = "/oauth/token"
	natcashCreatePath = "/api/v1/payment/create"
	natcashStatusPath = "/api/v1/payment/status"
	natcashRefundPath = "/api/v1/payment/refund"
)

// NatCashConfig holds NatCash credentials and endpoints
type NatCashConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// NatCashAdapter implements PaymentProvider against the NatCash REST API
type NatCashAdapter struct {
	cfg         NatCashConfig
	tokens      *TokenCache
	client      *http.Client
	tokenClient *http.Client
}

// NewNatCashAdapter creates a NatCash adapter
func NewNatCashAdapter(cfg NatCashConfig, tokens *TokenCache) *NatCashAdapter {
	return &NatCashAdapter{
		cfg:         cfg,
		tokens:      tokens,
		client:      &http.Client{Timeout: 30 * time.Second},
		tokenClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *NatCashAdapter) Name() entities.Channel {
	return entities.ChannelNatCash
}

func (a *NatCashAdapter) configured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != ""
}

func (a *NatCashAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if req.Currency == entities.CurrencyUSD {
		amount = amount * UsdToHtgRate
	}

	body, _ := json.Marshal(map[string]interface{}{
		"amount":      amount,
		"orderId":     req.OrderID,
		"phone":       req.Phone,
		"callbackUrl": req.CallbackURL,
	})

	out := struct {
		TransactionID string `json:"transactionId"`
		RedirectURL   string `json:"redirectUrl"`
		Reference     string `json:"reference"`
	}{}
	if err := a.postJSON(ctx, natcashCreatePath, token, body, &out); err != nil {
		return nil, err
	}
	if out.TransactionID == "" {
		return nil, fmt.Errorf("%w: create response missing transactionId", ErrProviderError)
	}

	return &CreateResult{
		ProviderTxID: out.TransactionID,
		RedirectURL:  out.RedirectURL,
		Reference:    out.Reference,
	}, nil
}

func (a *NatCashAdapter) GetStatus(ctx context.Context, providerTxID string) (*StatusResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{"transactionId": providerTxID})
	out := struct {
		Status string `json:"status"`
		Payer  string `json:"payer"`
	}{}
	if err := a.postJSON(ctx, natcashStatusPath, token, body, &out); err != nil {
		return nil, err
	}

	return &StatusResult{Status: natcashStatus(out.Status), Payer: out.Payer}, nil
}

func (a *NatCashAdapter) Refund(ctx context.Context, providerTxID string, amount float64) (*RefundResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]interface{}{
		"transactionId": providerTxID,
		"amount":        amount,
	})
	out := struct {
		RefundID string `json:"refundId"`
		Status   string `json:"status"`
	}{}
	if err := a.postJSON(ctx, natcashRefundPath, token, body, &out); err != nil {
		return nil, err
	}

	return &RefundResult{RefundID: out.RefundID, Status: out.Status}, nil
}

// VerifyCallback mirrors the MonCash structural checks; NatCash notifications
// carry no signature either.
func (a *NatCashAdapter) VerifyCallback(rawBody []byte, _ http.Header) (*CallbackEvent, error) {
	var payload struct {
		TransactionID string          `json:"transactionId"`
		OrderID       string          `json:"orderId"`
		Amount        json.RawMessage `json:"amount"`
		Status        string          `json:"status"`
		Reason        string          `json:"reason"`
		Payer         string          `json:"payer"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed body", ErrBadCallback)
	}
	if payload.TransactionID == "" || payload.OrderID == "" {
		return nil, fmt.Errorf("%w: missing transactionId or orderId", ErrBadCallback)
	}

	var amount float64
	if err := json.Unmarshal(payload.Amount, &amount); err != nil {
		return nil, fmt.Errorf("%w: non-numeric amount", ErrBadCallback)
	}

	status := natcashStatus(payload.Status)
	return &CallbackEvent{
		ProviderTxID:  payload.TransactionID,
		OrderID:       payload.OrderID,
		EventType:     "natcash." + strings.ToLower(payload.Status),
		Status:        status,
		Amount:        amount,
		FailureReason: payload.Reason,
		Payer:         payload.Payer,
	}, nil
}

func (a *NatCashAdapter) postJSON(ctx context.Context, path, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: %s returned %d", ErrProviderError, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrProviderError, path, err)
	}
	return nil
}

func (a *NatCashAdapter) accessToken(ctx context.Context) (string, error) {
	return a.tokens.Get(ctx, string(entities.ChannelNatCash), func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+natcashTokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrProviderError, err)
		}
		req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := a.tokenClient.Do(req)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", classifyTransport(err), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", 0, fmt.Errorf("%w: token endpoint returned %d", ErrProviderError, resp.StatusCode)
		}

		var out struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", 0, fmt.Errorf("%w: decoding token response: %v", ErrProviderError, err)
		}
		if out.AccessToken == "" {
			return "", 0, fmt.Errorf("%w: empty access token", ErrProviderError)
		}
		return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
	})
}

func natcashStatus(s string) entities.PaymentStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return entities.PaymentStatusCompleted
	case "PENDING", "PROCESSING":
		return entities.PaymentStatusPending
	// NatCash reports user aborts as CANCELLED; the gateway treats both as
	// terminal failure.
	case "FAILED", "CANCELLED", "CANCELED":
		return entities.PaymentStatusFailed
	default:
		return entities.PaymentStatusPending
	}
}
