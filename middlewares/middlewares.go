package middlewares

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"traceback/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// APIKeyHeader is the header private endpoints expect the key in.
const APIKeyHeader = "X-Traceback-API-Key"

type apiKeyCacheEntry struct {
	key       *models.APIKey
	expiresAt time.Time
}

var (
	apiKeyCache    = sync.Map{}
	apiKeyCacheTTL = 5 * time.Minute
)

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "ApiKey" {
			return parts[1]
		}
	}

	return ""
}

func cachedAPIKey(value string) (*models.APIKey, bool) {
	if val, ok := apiKeyCache.Load(value); ok {
		entry := val.(*apiKeyCacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.key, true
		}
		apiKeyCache.Delete(value)
	}
	return nil, false
}

// ResetAPIKeyCache clears the in-process key cache. Used by tests and after
// key rotation.
func ResetAPIKeyCache() {
	apiKeyCache.Range(func(k, _ any) bool {
		apiKeyCache.Delete(k)
		return true
	})
}

// APIKeyMiddleware validates the key against the api_keys table. Known keys
// are cached in-process for a few minutes to keep the hot write path off the
// database.
func APIKeyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := extractAPIKey(c)

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Please provide an API key in the " + APIKeyHeader + " header",
			})
			return
		}

		if key, ok := cachedAPIKey(apiKey); ok {
			c.Set("apiKeyID", key.ID)
			c.Next()
			return
		}

		key, err := (&models.APIKey{}).FindAPIKeyByValue(db, apiKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": "Failed to validate API key",
			})
			return
		}
		if key == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}

		apiKeyCache.Store(apiKey, &apiKeyCacheEntry{key: key, expiresAt: time.Now().Add(apiKeyCacheTTL)})
		c.Set("apiKeyID", key.ID)
		c.Next()
	}
}

// CORSMiddleware lets the browser-side pre-install agent and dashboards call
// the API cross-origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowedOrigins := []string{"http://localhost:3000"}
		if configured := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); configured != "" {
			for _, o := range strings.Split(configured, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		}

		for _, o := range allowedOrigins {
			if o == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", o)
				break
			}
		}

		c.Writer.Header().Set("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, Content-Length, Accept, Origin, Cache-Control, X-Requested-With, "+APIKeyHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods",
			"POST, GET, OPTIONS, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
