package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/interfaces/http/response"
	"dhecash.backend/pkg/logger"
	"dhecash.backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// lockDuration bounds how long a key stays reserved while the first
	// request is still in flight
	lockDuration = 30 * time.Second
	// retentionDuration is how long a completed response is replayable
	retentionDuration = 24 * time.Hour

	processingMarker = "processing"
)

var (
	redisGet   = redis.Get
	redisSet   = redis.Set
	redisSetNX = redis.SetNX
	redisDel   = redis.Del
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

type bodyCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a previously completed
// request carrying the same Idempotency-Key, and rejects concurrent
// duplicates while the first attempt is still running. Keys are scoped
// per merchant. Only 2xx responses are retained; failures release the
// key so the client can retry.
func Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		merchantID := c.GetString(MerchantIDKey)
		storageKey := fmt.Sprintf("idempotency:%s:%s", merchantID, key)
		ctx := c.Request.Context()

		val, err := redisGet(ctx, storageKey)
		if err == nil {
			if val == processingMarker {
				response.AbortError(c, domainerrors.IdempotencyConflict("a request with this idempotency key is already in progress"))
				return
			}

			var cached cachedResponse
			if unmarshalErr := json.Unmarshal([]byte(val), &cached); unmarshalErr != nil {
				// Unreadable entry, drop it and process fresh
				_ = redisDel(ctx, storageKey)
			} else {
				c.Header("Content-Type", "application/json")
				c.Header("X-Idempotency-Hit", "true")
				c.String(cached.Status, cached.Body)
				c.Abort()
				return
			}
		} else if err.Error() != "redis: nil" {
			// Redis unavailable, let the request through rather than
			// blocking payments behind the cache
			logger.Warn(ctx, "idempotency store unavailable, skipping")
			c.Next()
			return
		}

		acquired, err := redisSetNX(ctx, storageKey, processingMarker, lockDuration)
		if err != nil || !acquired {
			response.AbortError(c, domainerrors.IdempotencyConflict("a request with this idempotency key is already in progress"))
			return
		}

		w := &bodyCapture{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			payload, marshalErr := json.Marshal(cachedResponse{Status: status, Body: w.body.String()})
			if marshalErr == nil {
				_ = redisSet(ctx, storageKey, string(payload), retentionDuration)
			}
		} else {
			_ = redisDel(ctx, storageKey)
		}
	}
}
