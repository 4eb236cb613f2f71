package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/middleware"
	"dhecash.backend/internal/interfaces/http/response"
)

type WebhookConfigService interface {
	CreateConfig(ctx context.Context, merchantID uuid.UUID, input *entities.CreateWebhookConfigInput) (*entities.WebhookConfig, error)
	ListConfigs(ctx context.Context, merchantID uuid.UUID) ([]*entities.WebhookConfig, error)
	DeleteConfig(ctx context.Context, merchantID, id uuid.UUID) error
}

type DeliveryService interface {
	ListDeliveries(ctx context.Context, merchantID uuid.UUID, paymentID uuid.UUID) ([]*entities.WebhookLog, error)
}

type paymentResolver interface {
	GetPayment(ctx context.Context, merchantID uuid.UUID, ref string) (*entities.Payment, error)
}

// WebhookHandler handles webhook subscription management and delivery logs
type WebhookHandler struct {
	configs    WebhookConfigService
	deliveries DeliveryService
	payments   paymentResolver
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(configs WebhookConfigService, deliveries DeliveryService, payments paymentResolver) *WebhookHandler {
	return &WebhookHandler{configs: configs, deliveries: deliveries, payments: payments}
}

// CreateConfig registers a webhook subscription. The signing secret is only
// ever returned here.
// POST /api/v1/webhook-configs
func (h *WebhookHandler) CreateConfig(c *gin.Context) {
	var input entities.CreateWebhookConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}

	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	config, err := h.configs.CreateConfig(c.Request.Context(), merchantID, &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"config": config,
		"secret": config.Secret,
	})
}

// ListConfigs lists the merchant's webhook subscriptions
// GET /api/v1/webhook-configs
func (h *WebhookHandler) ListConfigs(c *gin.Context) {
	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	configs, err := h.configs.ListConfigs(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"configs": configs})
}

// DeleteConfig removes a webhook subscription
// DELETE /api/v1/webhook-configs/:id
func (h *WebhookHandler) DeleteConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.Validation("invalid config id"))
		return
	}

	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	if err := h.configs.DeleteConfig(c.Request.Context(), merchantID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ListDeliveries lists the outbound notification log of one payment
// GET /v1/payments/:ref/deliveries
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), merchantID, c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}

	logs, err := h.deliveries.ListDeliveries(c.Request.Context(), merchantID, payment.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deliveries": logs})
}
