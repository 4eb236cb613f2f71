package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/response"
	"dhecash.backend/pkg/jwt"
)

const (
	MerchantIDKey    = "merchant_id"
	MerchantEmailKey = "merchant_email"
	EnvironmentKey   = "environment"

	APIKeyHeader    = "X-Api-Key"
	APISecretHeader = "X-Api-Secret"
	BearerPrefix    = "Bearer "
)

type apiKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, keyID, secret string) (*entities.Merchant, error)
}

// Auth authenticates a request either by API key pair or by JWT bearer
// token. API keys take precedence when both are present.
func Auth(jwtService *jwt.JWTService, merchants apiKeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.GetHeader(APIKeyHeader)
		secret := c.GetHeader(APISecretHeader)

		if keyID != "" {
			if secret == "" {
				response.AbortError(c, domainerrors.APIKeyInvalid("missing API secret"))
				return
			}

			merchant, err := merchants.AuthenticateAPIKey(c.Request.Context(), keyID, secret)
			if err != nil {
				response.AbortError(c, err)
				return
			}

			setPrincipal(c, merchant.ID.String(), merchant.Email, merchant.Environment)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, BearerPrefix) {
			claims, err := jwtService.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.AbortError(c, domainerrors.TokenExpired("token has expired"))
					return
				}
				response.AbortError(c, domainerrors.TokenInvalid("invalid token"))
				return
			}

			setPrincipal(c, claims.MerchantID.String(), claims.Email, claims.Environment)
			c.Next()
			return
		}

		response.AbortError(c, domainerrors.AuthRequired("authentication required"))
	}
}

// GetMerchantID returns the authenticated merchant's ID from the context
func GetMerchantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(MerchantIDKey))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func setPrincipal(c *gin.Context, merchantID, email, environment string) {
	c.Set(MerchantIDKey, merchantID)
	c.Set(MerchantEmailKey, email)
	c.Set(EnvironmentKey, environment)
}
