package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dhecash.backend/internal/domain/entities"
)

// UsdToHtgRate is the fixed estimation rate applied when a USD payment is
// dispatched to MonCash, which only accepts HTG.
const UsdToHtgRate = 140.0

const (
	moncashTokenPath    = "/Api/oauth/token"
	moncashCreatePath   = "/Api/v1/CreatePayment"
	moncashRetrievePath = "/Api/v1/RetrieveTransactionPayment"
	moncashTransferPath = "/Api/v1/Transfert"
	moncashRedirectPath = "/Moncash-middleware/Checkout/Payment/Redirect"
)

// MonCashConfig holds MonCash credentials and endpoints
type MonCashConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	GatewayURL   string
}

// MonCashAdapter implements PaymentProvider against the MonCash REST API
type MonCashAdapter struct {
	cfg         MonCashConfig
	tokens      *TokenCache
	client      *http.Client
	tokenClient *http.Client
}

// NewMonCashAdapter creates a MonCash adapter
func NewMonCashAdapter(cfg MonCashConfig, tokens *TokenCache) *MonCashAdapter {
	return &MonCashAdapter{
		cfg:         cfg,
		tokens:      tokens,
		client:      &http.Client{Timeout: 30 * time.Second},
		tokenClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *MonCashAdapter) Name() entities.Channel {
	return entities.ChannelMonCash
}

func (a *MonCashAdapter) configured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != ""
}

// CreatePayment initiates a payment. MonCash settles in HTG only, so USD
// amounts are converted with the fixed estimation rate before dispatch; the
// persisted payment stays in its original currency.
func (a *MonCashAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
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
		"amount":  amount,
		"orderId": req.OrderID,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+moncashCreatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%w: create payment returned %d", ErrProviderError, resp.StatusCode)
	}

	var out struct {
		PaymentToken struct {
			Token string `json:"token"`
		} `json:"payment_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding create response: %v", ErrProviderError, err)
	}
	if out.PaymentToken.Token == "" {
		return nil, fmt.Errorf("%w: create response missing payment token", ErrProviderError)
	}

	txID, ref, err := decodePaymentToken(out.PaymentToken.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	gateway := a.cfg.GatewayURL
	if gateway == "" {
		gateway = a.cfg.BaseURL
	}
	redirect := gateway + moncashRedirectPath + "?token=" + url.QueryEscape(out.PaymentToken.Token)

	return &CreateResult{
		ProviderTxID: txID,
		RedirectURL:  redirect,
		Reference:    ref,
	}, nil
}

// GetStatus queries MonCash for the current state of a transaction
func (a *MonCashAdapter) GetStatus(ctx context.Context, providerTxID string) (*StatusResult, error) {
	if !a.configured() {
		return nil, ErrProviderUnavailable
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{"transactionId": providerTxID})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+moncashRetrievePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: retrieve returned %d", ErrProviderError, resp.StatusCode)
	}

	var out struct {
		Payment struct {
			Message string `json:"message"`
			Payer   string `json:"payer"`
		} `json:"payment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding retrieve response: %v", ErrProviderError, err)
	}

	return &StatusResult{
		Status: moncashStatus(out.Payment.Message),
		Payer:  out.Payment.Payer,
	}, nil
}

// Refund moves funds back to the payer via the transfer API
func (a *MonCashAdapter) Refund(ctx context.Context, providerTxID string, amount float64) (*RefundResult, error) {
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
		"desc":          "refund",
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+moncashTransferPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifyTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%w: transfer returned %d", ErrProviderError, resp.StatusCode)
	}

	var out struct {
		Transfer struct {
			TransactionID string `json:"transaction_id"`
			Message       string `json:"message"`
		} `json:"transfer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding transfer response: %v", ErrProviderError, err)
	}

	return &RefundResult{RefundID: out.Transfer.TransactionID, Status: out.Transfer.Message}, nil
}

// VerifyCallback authenticates a MonCash notification. MonCash signs nothing,
// so verification is structural: transactionId and orderId must be present
// and the amount must be numeric.
func (a *MonCashAdapter) VerifyCallback(rawBody []byte, _ http.Header) (*CallbackEvent, error) {
	var payload struct {
		TransactionID string          `json:"transactionId"`
		OrderID       string          `json:"orderId"`
		Amount        json.RawMessage `json:"amount"`
		Message       string          `json:"message"`
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

	status := entities.PaymentStatusCompleted
	if payload.Message != "" {
		status = moncashStatus(payload.Message)
	}

	return &CallbackEvent{
		ProviderTxID: payload.TransactionID,
		OrderID:      payload.OrderID,
		EventType:    "moncash." + string(status),
		Status:       status,
		Amount:       amount,
		Payer:        payload.Payer,
	}, nil
}

func (a *MonCashAdapter) accessToken(ctx context.Context) (string, error) {
	return a.tokens.Get(ctx, string(entities.ChannelMonCash), func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{}
		form.Set("scope", "read,write")
		form.Set("grant_type", "client_credentials")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+moncashTokenPath, strings.NewReader(form.Encode()))
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

func moncashStatus(message string) entities.PaymentStatus {
	switch strings.ToLower(message) {
	case "successful", "success", "completed":
		return entities.PaymentStatusCompleted
	case "pending":
		return entities.PaymentStatusPending
	case "failed":
		return entities.PaymentStatusFailed
	case "cancelled", "canceled":
		return entities.PaymentStatusCancelled
	default:
		return entities.PaymentStatusPending
	}
}

// decodePaymentToken extracts the provider transaction id and reference from
// the JWT MonCash returns at creation. Only the payload segment is read; the
// signature belongs to MonCash's middleware, not to us.
func decodePaymentToken(token string) (txID, ref string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("payment token is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// Some gateways pad the segment
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return "", "", fmt.Errorf("decoding payment token payload: %w", err)
		}
	}

	var claims struct {
		ID  string `json:"id"`
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", fmt.Errorf("parsing payment token payload: %w", err)
	}
	if claims.ID == "" {
		return "", "", fmt.Errorf("payment token missing transaction id")
	}
	return claims.ID, claims.Ref, nil
}
