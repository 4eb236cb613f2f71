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
	"dhecash.backend/internal/usecases"
)

type merchantServiceStub struct {
	registerFn func(ctx context.Context, input *usecases.RegisterMerchantInput) (*usecases.RegisteredMerchant, error)
}

func (s *merchantServiceStub) Register(ctx context.Context, input *usecases.RegisterMerchantInput) (*usecases.RegisteredMerchant, error) {
	return s.registerFn(ctx, input)
}

func merchantRouter(stub *merchantServiceStub) *gin.Engine {
	router := gin.New()
	router.POST("/api/v1/merchants/register", NewMerchantHandler(stub).Register)
	return router
}

func TestRegisterMerchantHandler(t *testing.T) {
	stub := &merchantServiceStub{
		registerFn: func(_ context.Context, input *usecases.RegisterMerchantInput) (*usecases.RegisteredMerchant, error) {
			return &usecases.RegisteredMerchant{
				Merchant: &entities.Merchant{
					ID:           uuid.New(),
					BusinessName: input.BusinessName,
					Email:        input.Email,
					Environment:  input.Environment,
					Status:       entities.MerchantStatusActive,
				},
				KeyID:     "pk_test_abc",
				APISecret: "sk_test_def",
			}, nil
		},
	}
	router := merchantRouter(stub)

	body := `{"businessName":"Boutique Lakay","email":"shop@example.com","environment":"test"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merchants/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"keyId":"pk_test_abc"`)
	assert.Contains(t, w.Body.String(), `"apiSecret":"sk_test_def"`)
}

func TestRegisterMerchantHandlerValidation(t *testing.T) {
	router := merchantRouter(&merchantServiceStub{})

	body := `{"businessName":"Boutique Lakay","email":"not-an-email","environment":"prod"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merchants/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domainerrors.CodeValidationError)
}
