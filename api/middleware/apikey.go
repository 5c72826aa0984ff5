package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader        = "X-GOVERNOR-API-KEY"
	WebhookSecretHeader = "X-Webhook-Secret"
)

// APIKeyConfig holds the configuration for shared-secret header authentication
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
	// AllowWhenUnset lets requests through when no key is configured
	AllowWhenUnset bool
}

// APIKeyMiddleware rejects requests whose header does not carry the configured key
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	expected := []byte(config.ValidAPIKey)
	return func(c *gin.Context) {
		if config.ValidAPIKey == "" && config.AllowWhenUnset {
			c.Next()
			return
		}

		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing " + config.HeaderName})
			return
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid " + config.HeaderName})
			return
		}

		c.Next()
	}
}
