package usecases_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"dhecash.backend/internal/domain/entities"
	"dhecash.backend/internal/infrastructure/queue"
	"dhecash.backend/internal/usecases"
)

func newDispatchFixture() (*usecases.DispatchUsecase, *MockWebhookConfigRepository, *MockWebhookLogRepository, *capturingEnqueuer) {
	configRepo := new(MockWebhookConfigRepository)
	logRepo := new(MockWebhookLogRepository)
	enqueuer := newCapturingEnqueuer()
	return usecases.NewDispatchUsecase(configRepo, logRepo, enqueuer), configRepo, logRepo, enqueuer
}

func TestFanoutFiltersBySubscription(t *testing.T) {
	uc, configRepo, logRepo, enqueuer := newDispatchFixture()
	merchantID := uuid.New()
	payment := &entities.Payment{ID: uuid.New(), Reference: "pay_1", MerchantID: merchantID}

	subscribed := &entities.WebhookConfig{
		ID: uuid.New(), MerchantID: merchantID,
		URL: "https://a.example/hooks", Events: []string{entities.EventPaymentSucceeded},
	}
	other := &entities.WebhookConfig{
		ID: uuid.New(), MerchantID: merchantID,
		URL: "https://b.example/hooks", Events: []string{entities.EventPaymentRefunded},
	}
	configRepo.On("ListActiveByMerchant", mock.Anything, merchantID).
		Return([]*entities.WebhookConfig{subscribed, other}, nil)
	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(l *entities.WebhookLog) bool {
		return l.WebhookConfigID == subscribed.ID
	})).Return(nil)

	require.NoError(t, uc.Fanout(context.Background(), payment, entities.EventPaymentSucceeded))

	// One log, one job: only the subscribed endpoint
	assert.Equal(t, 1, enqueuer.count(queue.QueueWebhooks))
	logRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestFanoutWildcardMatchesEverything(t *testing.T) {
	uc, configRepo, logRepo, enqueuer := newDispatchFixture()
	merchantID := uuid.New()
	payment := &entities.Payment{ID: uuid.New(), Reference: "pay_1", MerchantID: merchantID}

	config := &entities.WebhookConfig{
		ID: uuid.New(), MerchantID: merchantID,
		URL: "https://a.example/hooks", Events: []string{entities.EventWildcard},
	}
	configRepo.On("ListActiveByMerchant", mock.Anything, merchantID).
		Return([]*entities.WebhookConfig{config}, nil)
	logRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, uc.Fanout(context.Background(), payment, entities.EventPaymentCancelled))
	assert.Equal(t, 1, enqueuer.count(queue.QueueWebhooks))
}

func TestFanoutPayloadShape(t *testing.T) {
	uc, configRepo, logRepo, _ := newDispatchFixture()
	merchantID := uuid.New()
	now := time.Now().UTC()
	payment := &entities.Payment{
		ID: uuid.New(), Reference: "pay_shape", MerchantID: merchantID,
		Channel: entities.ChannelMonCash, Status: entities.PaymentStatusCompleted,
		Amount: 25, Currency: entities.CurrencyUSD,
		FeeAmount: 0.88, NetAmount: 24.12,
		OrderID:               null.StringFrom("O-77"),
		ProviderTransactionID: null.StringFrom("MC-9"),
		CustomerEmail:         null.StringFrom("payer@example.com"),
		CustomerPhone:         null.StringFrom("50937001234"),
		Metadata:              null.StringFrom(`{"internal":"yes"}`),
		RedirectURL:           null.StringFrom("https://pay.example/redirect"),
		CompletedAt:           &now,
	}

	config := &entities.WebhookConfig{
		ID: uuid.New(), MerchantID: merchantID,
		URL: "https://a.example/hooks", Events: []string{entities.EventWildcard},
	}
	configRepo.On("ListActiveByMerchant", mock.Anything, merchantID).
		Return([]*entities.WebhookConfig{config}, nil)

	var captured *entities.WebhookLog
	logRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*entities.WebhookLog)
	}).Return(nil)

	require.NoError(t, uc.Fanout(context.Background(), payment, entities.EventPaymentSucceeded))
	require.NotNil(t, captured)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(captured.Payload), &envelope))
	assert.Contains(t, envelope, "api_version")
	assert.Contains(t, envelope, "event_type")
	assert.Contains(t, envelope, "created_at")
	assert.JSONEq(t, `"1.0"`, string(envelope["api_version"]))
	assert.JSONEq(t, `"payment.succeeded"`, string(envelope["event_type"]))

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	assert.Equal(t, "pay_shape", data["payment_ref"])
	assert.Equal(t, "O-77", data["order_id"])
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, "moncash", data["channel"])
	assert.Equal(t, 0.88, data["fee_amount"])
	assert.Equal(t, 24.12, data["net_amount"])
	assert.Equal(t, "MC-9", data["provider_transaction_id"])
	assert.Contains(t, data, "completed_at")

	// Payer contact details and internal fields never leave the gateway
	assert.NotContains(t, captured.Payload, "payer@example.com")
	assert.NotContains(t, captured.Payload, "50937001234")
	assert.NotContains(t, captured.Payload, "internal")
	assert.NotContains(t, captured.Payload, "redirect")
}

func TestDeliverWebhookSuccess(t *testing.T) {
	uc, configRepo, logRepo, _ := newDispatchFixture()

	payload := `{"api_version":"1.0","event_type":"payment.succeeded"}`
	secret := "whsec_s3cret"

	var gotSignature, gotEvent, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(usecases.SignatureHeader)
		gotEvent = r.Header.Get(usecases.EventHeader)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := &entities.WebhookConfig{ID: uuid.New(), URL: server.URL, Secret: secret}
	log := &entities.WebhookLog{
		ID:              uuid.New(),
		WebhookConfigID: config.ID,
		EventType:       entities.EventPaymentSucceeded,
		Payload:         payload,
		Status:          entities.WebhookLogStatusPending,
	}
	logRepo.On("GetByID", mock.Anything, log.ID).Return(log, nil)
	configRepo.On("GetByID", mock.Anything, config.ID).Return(config, nil)
	logRepo.On("RecordAttempt", mock.Anything, log).Return(nil)

	job, err := queue.NewJob(queue.JobTypeDeliverWebhook, usecases.DeliverWebhookPayload{WebhookLogID: log.ID})
	require.NoError(t, err)

	require.NoError(t, uc.DeliverWebhook(context.Background(), job))

	assert.Equal(t, entities.WebhookLogStatusDelivered, log.Status)
	assert.Equal(t, 1, log.AttemptCount)
	require.NotNil(t, log.DeliveredAt)
	require.NotNil(t, log.HTTPStatus)
	assert.Equal(t, http.StatusOK, *log.HTTPStatus)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, entities.EventPaymentSucceeded, gotEvent)

	// Signature verifies against the secret
	parts := strings.SplitN(gotSignature, ",", 2)
	require.Len(t, parts, 2)
	timestamp := strings.TrimPrefix(parts[0], "t=")
	sig := strings.TrimPrefix(parts[1], "v1=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestDeliverWebhookNon2xxSchedulesRetry(t *testing.T) {
	uc, configRepo, logRepo, _ := newDispatchFixture()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	config := &entities.WebhookConfig{ID: uuid.New(), URL: server.URL, Secret: "whsec_x"}
	log := &entities.WebhookLog{
		ID:              uuid.New(),
		WebhookConfigID: config.ID,
		Payload:         `{}`,
		Status:          entities.WebhookLogStatusPending,
	}
	logRepo.On("GetByID", mock.Anything, log.ID).Return(log, nil)
	configRepo.On("GetByID", mock.Anything, config.ID).Return(config, nil)
	logRepo.On("RecordAttempt", mock.Anything, log).Return(nil)

	job, err := queue.NewJob(queue.JobTypeDeliverWebhook, usecases.DeliverWebhookPayload{WebhookLogID: log.ID})
	require.NoError(t, err)

	err = uc.DeliverWebhook(context.Background(), job)
	require.Error(t, err)

	// Still pending so the retry can flip it later
	assert.Equal(t, entities.WebhookLogStatusPending, log.Status)
	assert.Equal(t, 1, log.AttemptCount)
	require.NotNil(t, log.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, *log.HTTPStatus)
	assert.Equal(t, "boom", log.ResponseBody.String)
}

func TestDeliverWebhookUnreachableEndpoint(t *testing.T) {
	uc, configRepo, logRepo, _ := newDispatchFixture()

	config := &entities.WebhookConfig{ID: uuid.New(), URL: "http://127.0.0.1:1", Secret: "whsec_x"}
	log := &entities.WebhookLog{
		ID:              uuid.New(),
		WebhookConfigID: config.ID,
		Payload:         `{}`,
		Status:          entities.WebhookLogStatusPending,
	}
	logRepo.On("GetByID", mock.Anything, log.ID).Return(log, nil)
	configRepo.On("GetByID", mock.Anything, config.ID).Return(config, nil)
	logRepo.On("RecordAttempt", mock.Anything, log).Return(nil)

	job, err := queue.NewJob(queue.JobTypeDeliverWebhook, usecases.DeliverWebhookPayload{WebhookLogID: log.ID})
	require.NoError(t, err)

	err = uc.DeliverWebhook(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, 1, log.AttemptCount)
	assert.Nil(t, log.HTTPStatus)
}

func TestDeliverWebhookReplayAfterDeliveryIsNoop(t *testing.T) {
	uc, _, logRepo, _ := newDispatchFixture()

	log := &entities.WebhookLog{
		ID:     uuid.New(),
		Status: entities.WebhookLogStatusDelivered,
	}
	logRepo.On("GetByID", mock.Anything, log.ID).Return(log, nil)

	job, err := queue.NewJob(queue.JobTypeDeliverWebhook, usecases.DeliverWebhookPayload{WebhookLogID: log.ID})
	require.NoError(t, err)

	require.NoError(t, uc.DeliverWebhook(context.Background(), job))
	logRepo.AssertNotCalled(t, "RecordAttempt", mock.Anything, mock.Anything)
}

func TestMarkExhausted(t *testing.T) {
	uc, _, logRepo, _ := newDispatchFixture()

	log := &entities.WebhookLog{
		ID:     uuid.New(),
		Status: entities.WebhookLogStatusPending,
	}
	logRepo.On("GetByID", mock.Anything, log.ID).Return(log, nil)
	logRepo.On("RecordAttempt", mock.Anything, log).Return(nil)

	job, err := queue.NewJob(queue.JobTypeDeliverWebhook, usecases.DeliverWebhookPayload{WebhookLogID: log.ID})
	require.NoError(t, err)

	uc.MarkExhausted(context.Background(), job, errors.New("endpoint kept failing"))
	assert.Equal(t, entities.WebhookLogStatusFailed, log.Status)
}

func TestSign(t *testing.T) {
	got := usecases.Sign("secret", "1700000000", []byte(`{"a":1}`))
	assert.True(t, strings.HasPrefix(got, "t=1700000000,v1="))

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(`1700000000.{"a":1}`))
	assert.Equal(t, "t=1700000000,v1="+hex.EncodeToString(mac.Sum(nil)), got)
}

func TestListDeliveriesScopesByMerchant(t *testing.T) {
	uc, _, logRepo, _ := newDispatchFixture()
	merchantID := uuid.New()
	paymentID := uuid.New()

	mine := &entities.WebhookLog{ID: uuid.New(), MerchantID: merchantID, PaymentID: paymentID}
	theirs := &entities.WebhookLog{ID: uuid.New(), MerchantID: uuid.New(), PaymentID: paymentID}
	logRepo.On("ListByPayment", mock.Anything, paymentID).
		Return([]*entities.WebhookLog{mine, theirs}, nil)

	logs, err := uc.ListDeliveries(context.Background(), merchantID, paymentID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, mine.ID, logs[0].ID)
}
