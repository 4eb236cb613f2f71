package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/response"
)

type CallbackService interface {
	HandleCallback(ctx context.Context, channel entities.Channel, rawBody []byte, headers http.Header) error
}

// CallbackHandler receives inbound provider callbacks
type CallbackHandler struct {
	callbacks CallbackService
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(callbacks CallbackService) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

// Handle processes one provider callback
// POST /v1/webhooks/:channel
func (h *CallbackHandler) Handle(c *gin.Context) {
	// Stripe signatures cover the exact raw bytes, so grab them before any
	// binding touches the body
	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, domainerrors.Validation("unreadable request body"))
		return
	}

	channel := entities.Channel(c.Param("channel"))
	if err := h.callbacks.HandleCallback(c.Request.Context(), channel, raw, c.Request.Header); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
