package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dhecash.backend/internal/domain/entities"
)

// stubTokenHooks forces cache misses so every adapter call mints through the
// stub server, and restores the real hooks afterwards.
func stubTokenHooks(t *testing.T) {
	t.Helper()
	origGet, origSet := cacheGet, cacheSet
	cacheGet = func(ctx context.Context, key string) (string, error) {
		return "", errors.New("miss")
	}
	cacheSet = func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
		return nil
	}
	t.Cleanup(func() {
		cacheGet, cacheSet = origGet, origSet
	})
}

func moncashToken(t *testing.T, txID, ref string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"id": txID, "ref": ref})
	require.NoError(t, err)
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestMonCashCreatePayment(t *testing.T) {
	stubTokenHooks(t)

	token := moncashToken(t, "MC-12345", "REF-1")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case moncashTokenPath:
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-abc",
				"expires_in":   59,
			})
		case moncashCreatePath:
			assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "order-1", body["orderId"])
			// 10 USD converted to HTG
			assert.InDelta(t, 1400.0, body["amount"], 0.001)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payment_token": map[string]string{"token": token},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewMonCashAdapter(MonCashConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      server.URL,
		GatewayURL:   "https://gw.example.com",
	}, NewTokenCache())

	result, err := adapter.CreatePayment(context.Background(), &CreateRequest{
		Amount:   10,
		Currency: entities.CurrencyUSD,
		OrderID:  "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "MC-12345", result.ProviderTxID)
	assert.Equal(t, "REF-1", result.Reference)
	assert.Contains(t, result.RedirectURL, "https://gw.example.com"+moncashRedirectPath)
	assert.Contains(t, result.RedirectURL, "token=")
}

func TestMonCashCreatePaymentHTGNotConverted(t *testing.T) {
	stubTokenHooks(t)

	token := moncashToken(t, "MC-1", "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == moncashTokenPath {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 500.0, body["amount"], 0.001)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"payment_token": map[string]string{"token": token},
		})
	}))
	defer server.Close()

	adapter := NewMonCashAdapter(MonCashConfig{
		ClientID: "id", ClientSecret: "secret", BaseURL: server.URL,
	}, NewTokenCache())

	_, err := adapter.CreatePayment(context.Background(), &CreateRequest{
		Amount:   500,
		Currency: entities.CurrencyHTG,
		OrderID:  "o",
	})
	require.NoError(t, err)
}

func TestMonCashCreatePaymentNotConfigured(t *testing.T) {
	adapter := NewMonCashAdapter(MonCashConfig{}, NewTokenCache())
	_, err := adapter.CreatePayment(context.Background(), &CreateRequest{Amount: 1})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestMonCashCreatePaymentProviderDown(t *testing.T) {
	stubTokenHooks(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == moncashTokenPath {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewMonCashAdapter(MonCashConfig{
		ClientID: "id", ClientSecret: "secret", BaseURL: server.URL,
	}, NewTokenCache())

	_, err := adapter.CreatePayment(context.Background(), &CreateRequest{Amount: 1, OrderID: "o"})
	assert.ErrorIs(t, err, ErrProviderError)
}

func TestMonCashGetStatus(t *testing.T) {
	stubTokenHooks(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case moncashTokenPath:
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case moncashRetrievePath:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "MC-9", body["transactionId"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payment": map[string]string{"message": "successful", "payer": "50937001234"},
			})
		}
	}))
	defer server.Close()

	adapter := NewMonCashAdapter(MonCashConfig{
		ClientID: "id", ClientSecret: "secret", BaseURL: server.URL,
	}, NewTokenCache())

	status, err := adapter.GetStatus(context.Background(), "MC-9")
	require.NoError(t, err)
	assert.Equal(t, entities.PaymentStatusCompleted, status.Status)
	assert.Equal(t, "50937001234", status.Payer)
}

func TestMonCashRefund(t *testing.T) {
	stubTokenHooks(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case moncashTokenPath:
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case moncashTransferPath:
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.InDelta(t, 250.0, body["amount"], 0.001)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transfer": map[string]string{"transaction_id": "TR-1", "message": "successful"},
			})
		}
	}))
	defer server.Close()

	adapter := NewMonCashAdapter(MonCashConfig{
		ClientID: "id", ClientSecret: "secret", BaseURL: server.URL,
	}, NewTokenCache())

	result, err := adapter.Refund(context.Background(), "MC-9", 250)
	require.NoError(t, err)
	assert.Equal(t, "TR-1", result.RefundID)
}

func TestMonCashVerifyCallback(t *testing.T) {
	adapter := NewMonCashAdapter(MonCashConfig{}, NewTokenCache())

	tests := []struct {
		name    string
		body    string
		wantErr bool
		status  entities.PaymentStatus
	}{
		{
			name:   "valid successful",
			body:   `{"transactionId":"MC-1","orderId":"po_x","amount":1400,"message":"successful","payer":"50937001234"}`,
			status: entities.PaymentStatusCompleted,
		},
		{
			name:   "valid failed",
			body:   `{"transactionId":"MC-2","orderId":"po_y","amount":100,"message":"failed"}`,
			status: entities.PaymentStatusFailed,
		},
		{
			name:   "no message defaults to completed",
			body:   `{"transactionId":"MC-3","orderId":"po_z","amount":100}`,
			status: entities.PaymentStatusCompleted,
		},
		{
			name:    "missing transactionId",
			body:    `{"orderId":"po_x","amount":100}`,
			wantErr: true,
		},
		{
			name:    "missing orderId",
			body:    `{"transactionId":"MC-1","amount":100}`,
			wantErr: true,
		},
		{
			name:    "non-numeric amount",
			body:    `{"transactionId":"MC-1","orderId":"po_x","amount":"lots"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			body:    `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.VerifyCallback([]byte(tt.body), http.Header{})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, event.Status)
			assert.NotEmpty(t, event.ProviderTxID)
			assert.NotEmpty(t, event.OrderID)
		})
	}
}

func TestDecodePaymentToken(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"id": "TX-1", "ref": "R-1"})
	token := fmt.Sprintf("header.%s.sig", base64.RawURLEncoding.EncodeToString(payload))

	txID, ref, err := decodePaymentToken(token)
	require.NoError(t, err)
	assert.Equal(t, "TX-1", txID)
	assert.Equal(t, "R-1", ref)

	_, _, err = decodePaymentToken("not-a-jwt")
	assert.Error(t, err)

	_, _, err = decodePaymentToken("a.!!!.c")
	assert.Error(t, err)

	empty, _ := json.Marshal(map[string]string{"ref": "R"})
	_, _, err = decodePaymentToken("a." + base64.RawURLEncoding.EncodeToString(empty) + ".c")
	assert.Error(t, err)
}

func TestMonCashStatusMapping(t *testing.T) {
	assert.Equal(t, entities.PaymentStatusCompleted, moncashStatus("Successful"))
	assert.Equal(t, entities.PaymentStatusPending, moncashStatus("pending"))
	assert.Equal(t, entities.PaymentStatusFailed, moncashStatus("FAILED"))
	assert.Equal(t, entities.PaymentStatusCancelled, moncashStatus("cancelled"))
	assert.Equal(t, entities.PaymentStatusPending, moncashStatus("weird"))
}
