package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the shared webhook secret.
const HeaderAPIKey = "X-Webhook-API-Key"

// APIKeyAuthMiddleware rejects requests whose X-Webhook-API-Key header
// does not match key.
func APIKeyAuthMiddleware(key string) gin.HandlerFunc {
	want := HashKey(key)
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		got := HashKey(apiKey)
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

// HashKey returns the SHA-256 digest of an API key. Comparing digests keeps
// the comparison length independent of the input.
func HashKey(key string) [sha256.Size]byte {
	return sha256.Sum256([]byte(key))
}
