package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dhecash.backend/internal/interfaces/http/handlers"
	"dhecash.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	paymentHandler  *handlers.PaymentHandler
	callbackHandler *handlers.CallbackHandler
	webhookHandler  *handlers.WebhookHandler
	merchantHandler *handlers.MerchantHandler
	authMiddleware  gin.HandlerFunc
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Public payment API
	v1 := r.Group("/v1")
	{
		payments := v1.Group("/payments")
		payments.Use(d.authMiddleware)
		{
			payments.POST("", middleware.Idempotency(), d.paymentHandler.CreatePayment)
			payments.GET("", d.paymentHandler.ListPayments)
			payments.GET("/:ref", d.paymentHandler.GetPayment)
			payments.POST("/:ref/refund", middleware.Idempotency(), d.paymentHandler.Refund)
			payments.GET("/:ref/transactions", d.paymentHandler.ListTransactions)
			payments.GET("/:ref/deliveries", d.webhookHandler.ListDeliveries)
		}

		// Inbound provider callbacks. No auth, no rate limiting: each
		// adapter authenticates its own payloads.
		v1.POST("/webhooks/:channel", d.callbackHandler.Handle)

		// Hosted checkout page data (public)
		v1.GET("/checkout/:ref", d.paymentHandler.GetCheckout)
	}

	// Management API
	api := r.Group("/api/v1")
	{
		api.POST("/merchants/register", d.merchantHandler.Register)

		configs := api.Group("/webhook-configs")
		configs.Use(d.authMiddleware)
		{
			configs.POST("", d.webhookHandler.CreateConfig)
			configs.GET("", d.webhookHandler.ListConfigs)
			configs.DELETE("/:id", d.webhookHandler.DeleteConfig)
		}
	}
}
