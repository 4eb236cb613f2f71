package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/middleware"
)

type webhookConfigServiceStub struct {
	createFn func(ctx context.Context, merchantID uuid.UUID, input *entities.CreateWebhookConfigInput) (*entities.WebhookConfig, error)
	listFn   func(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error)
	deleteFn func(ctx context.Context, merchantID, id uuid.UUID) error
}

func (s *webhookConfigServiceStub) CreateConfig(ctx context.Context, merchantID uuid.UUID, input *entities.CreateWebhookConfigInput) (*entities.WebhookConfig, error) {
	return s.createFn(ctx, merchantID, input)
}

func (s *webhookConfigServiceStub) ListConfigs(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error) {
	return s.listFn(ctx, merchantID)
}

func (s *webhookConfigServiceStub) DeleteConfig(ctx context.Context, merchantID, id uuid.UUID) error {
	return s.deleteFn(ctx, merchantID, id)
}

type deliveryServiceStub struct {
	listFn func(ctx context.Context, merchantID uuid.UUID, paymentID uuid.UUID) ([]*entities.WebhookLog, error)
}

func (s *deliveryServiceStub) ListDeliveries(ctx context.Context, merchantID uuid.UUID, paymentID uuid.UUID) ([]*entities.WebhookLog, error) {
	return s.listFn(ctx, merchantID, paymentID)
}

type paymentResolverStub struct {
	payment *entities.Payment
	err     error
}

func (s *paymentResolverStub) GetPayment(context.Context, uuid.UUID, string) (*entities.Payment, error) {
	return s.payment, s.err
}

func webhookRouter(configs *webhookConfigServiceStub, deliveries *deliveryServiceStub, payments *paymentResolverStub, merchantID uuid.UUID) *gin.Engine {
	h := NewWebhookHandler(configs, deliveries, payments)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.MerchantIDKey, merchantID.String())
		c.Next()
	})
	router.POST("/api/v1/webhook-configs", h.CreateConfig)
	router.GET("/api/v1/webhook-configs", h.ListConfigs)
	router.DELETE("/api/v1/webhook-configs/:id", h.DeleteConfig)
	router.GET("/v1/payments/:ref/deliveries", h.ListDeliveries)
	return router
}

func TestCreateWebhookConfigHandlerReturnsSecretOnce(t *testing.T) {
	merchantID := uuid.New()
	configs := &webhookConfigServiceStub{
		createFn: func(_ context.Context, gotMerchant uuid.UUID, input *entities.CreateWebhookConfigInput) (*entities.WebhookConfig, error) {
			assert.Equal(t, merchantID, gotMerchant)
			return &entities.WebhookConfig{
				ID:         uuid.New(),
				MerchantID: gotMerchant,
				URL:        input.URL,
				Events:     input.Events,
				Secret:     "whsec_abc",
				IsActive:   true,
			}, nil
		},
	}
	router := webhookRouter(configs, &deliveryServiceStub{}, &paymentResolverStub{}, merchantID)

	body := `{"url":"https://merchant.example/hooks","events":["payment.succeeded"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook-configs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	// Secret comes back top-level; the config serialization itself hides it
	assert.Contains(t, w.Body.String(), `"secret":"whsec_abc"`)
}

func TestDeleteWebhookConfigHandlerBadID(t *testing.T) {
	router := webhookRouter(&webhookConfigServiceStub{}, &deliveryServiceStub{}, &paymentResolverStub{}, uuid.New())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/webhook-configs/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeliveriesHandlerScopedByPayment(t *testing.T) {
	merchantID := uuid.New()
	paymentID := uuid.New()
	deliveries := &deliveryServiceStub{
		listFn: func(_ context.Context, _ uuid.UUID, gotPayment uuid.UUID) ([]*entities.WebhookLog, error) {
			assert.Equal(t, paymentID, gotPayment)
			return []*entities.WebhookLog{{ID: uuid.New(), PaymentID: gotPayment, Status: entities.WebhookLogStatusDelivered}}, nil
		},
	}
	resolver := &paymentResolverStub{payment: &entities.Payment{ID: paymentID, Reference: "pay_abc"}}
	router := webhookRouter(&webhookConfigServiceStub{}, deliveries, resolver, merchantID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/payments/pay_abc/deliveries", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"delivered"`)
}

func TestListDeliveriesHandlerUnknownPayment(t *testing.T) {
	resolver := &paymentResolverStub{err: domainerrors.PaymentNotFound("payment not found")}
	router := webhookRouter(&webhookConfigServiceStub{}, &deliveryServiceStub{}, resolver, uuid.New())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/payments/pay_ghost/deliveries", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
