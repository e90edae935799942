package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/savagetongue/mess-connect0209/utils"
)

// PaymentSecurityHeaders adds security headers for payment endpoints
func PaymentSecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// PaymentRateLimiter caps payment calls across all clients.
func PaymentRateLimiter() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 20)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Please wait before making another payment request",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidatePaymentRequest rejects bodies without a positive integer amount.
// Amounts are minor units, so fractions are refused. The body stays readable
// for the handler.
func ValidatePaymentRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Amount int64 `json:"amount" binding:"required,gt=0"`
		}

		if err := c.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  false,
				"kind":    "validation_error",
				"message": "amount must be a positive whole number of minor units",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// LogPaymentRequest logs payment request details
func LogPaymentRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		utils.InfoLogger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"user":     c.GetString(ContextUserID),
		}).Info("Payment request")
	}
}
