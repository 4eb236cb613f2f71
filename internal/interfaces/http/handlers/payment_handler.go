package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/middleware"
	"dhecash.backend/internal/interfaces/http/response"
	"dhecash.backend/pkg/utils"
)

type PaymentService interface {
	CreatePayment(ctx context.Context, merchantID uuid.UUID, idempotencyKey string, input *entities.CreatePaymentInput) (*entities.Payment, error)
	GetPayment(ctx context.Context, merchantID uuid.UUID, ref string) (*entities.Payment, error)
	GetCheckout(ctx context.Context, ref string) (*entities.Payment, error)
	ListPayments(ctx context.Context, merchantID uuid.UUID, filter entities.ListPaymentsFilter) ([]*entities.Payment, error)
	ListTransactions(ctx context.Context, merchantID uuid.UUID, ref string) ([]*entities.Transaction, error)
	Refund(ctx context.Context, merchantID uuid.UUID, ref string, input *entities.RefundInput) (*entities.Payment, error)
}

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePayment creates a new payment
// POST /v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var input entities.CreatePaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}

	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	payment, err := h.payments.CreatePayment(
		c.Request.Context(),
		merchantID,
		c.GetHeader(middleware.IdempotencyHeader),
		&input,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, payment)
}

// GetPayment gets a payment by reference
// GET /v1/payments/:ref
func (h *PaymentHandler) GetPayment(c *gin.Context) {
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

	response.Success(c, http.StatusOK, payment)
}

// ListPayments lists the merchant's payments with cursor pagination
// GET /v1/payments?status=&channel=&from=&to=&cursor=&limit=
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	filter, err := parseListFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), merchantID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	nextCursor := ""
	if len(payments) == filter.Limit {
		nextCursor = utils.EncodeCursor(payments[len(payments)-1].ID)
	}

	response.List(c, http.StatusOK, payments, nextCursor)
}

// Refund refunds a payment, partially or in full
// POST /v1/payments/:ref/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	var input entities.RefundInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}

	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), merchantID, c.Param("ref"), &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, payment)
}

// ListTransactions lists the ledger entries of a payment
// GET /v1/payments/:ref/transactions
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	merchantID, ok := middleware.GetMerchantID(c)
	if !ok {
		response.Error(c, domainerrors.AuthRequired("merchant not authenticated"))
		return
	}

	txns, err := h.payments.ListTransactions(c.Request.Context(), merchantID, c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"transactions": txns})
}

// GetCheckout serves the public checkout view for the hosted payment page
// GET /v1/checkout/:ref
func (h *PaymentHandler) GetCheckout(c *gin.Context) {
	payment, err := h.payments.GetCheckout(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"reference":   payment.Reference,
		"status":      payment.Status,
		"amount":      payment.Amount,
		"currency":    payment.Currency,
		"channel":     payment.Channel,
		"description": payment.Description,
		"redirectUrl": payment.RedirectURL,
		"expiresAt":   payment.ExpiresAt,
	})
}

func parseListFilter(c *gin.Context) (entities.ListPaymentsFilter, error) {
	filter := entities.ListPaymentsFilter{
		Status:  entities.PaymentStatus(c.Query("status")),
		Channel: entities.Channel(c.Query("channel")),
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter.Limit = utils.ClampLimit(limit)

	if cursor := c.Query("cursor"); cursor != "" {
		id, err := utils.DecodeCursor(cursor)
		if err != nil {
			return filter, domainerrors.Validation("invalid cursor")
		}
		filter.Cursor = id
	}

	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, domainerrors.Validation("from must be RFC3339")
		}
		filter.From = &ts
	}
	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, domainerrors.Validation("to must be RFC3339")
		}
		filter.To = &ts
	}

	return filter, nil
}
