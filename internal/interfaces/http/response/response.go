package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	domainerrors "dhecash.backend/internal/domain/errors"
)

// errorBody is the wire shape of every error response
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// List sends a cursor page
func List(c *gin.Context, status int, data interface{}, nextCursor string) {
	c.JSON(status, gin.H{
		"data":       data,
		"nextCursor": nextCursor,
	})
}

// Error sends an error response using the stable error envelope. Anything
// that is not an AppError is masked as INTERNAL_ERROR.
func Error(c *gin.Context, err error) {
	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = domainerrors.InternalError(err)
	}

	c.JSON(appErr.Status, gin.H{
		"error": errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// AbortError sends an error response and stops the handler chain
func AbortError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
