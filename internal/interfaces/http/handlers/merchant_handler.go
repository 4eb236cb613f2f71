package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/response"
	"dhecash.backend/internal/usecases"
)

type MerchantService interface {
	Register(ctx context.Context, input *usecases.RegisterMerchantInput) (*usecases.RegisteredMerchant, error)
}

// MerchantHandler handles merchant onboarding
type MerchantHandler struct {
	merchants MerchantService
}

// NewMerchantHandler creates a new merchant handler
func NewMerchantHandler(merchants MerchantService) *MerchantHandler {
	return &MerchantHandler{merchants: merchants}
}

// Register onboards a merchant and mints its first API key pair. The secret
// is only ever returned here.
// POST /api/v1/merchants/register
func (h *MerchantHandler) Register(c *gin.Context) {
	var input usecases.RegisterMerchantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}

	result, err := h.merchants.Register(c.Request.Context(), &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"merchant":  result.Merchant,
		"keyId":     result.KeyID,
		"apiSecret": result.APISecret,
	})
}
