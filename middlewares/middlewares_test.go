package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"traceback/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func makeAPIKeyRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.APIKey{}))

	router := gin.New()
	router.Use(APIKeyMiddleware(db))
	router.GET("/private", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router, db
}

func seedKey(t *testing.T, db *gorm.DB, value string) {
	t.Helper()
	key := models.APIKey{ID: uuid.New(), Value: value, Label: "test"}
	_, err := key.SaveAPIKey(db)
	require.NoError(t, err)
}

func TestAPIKeyMiddlewareMissingKey(t *testing.T) {
	ResetAPIKeyCache()
	router, _ := makeAPIKeyRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyMiddlewareInvalidKey(t *testing.T) {
	ResetAPIKeyCache()
	router, db := makeAPIKeyRouter(t)
	seedKey(t, db, "real-key")

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(APIKeyHeader, "wrong-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPIKeyMiddlewareValidKey(t *testing.T) {
	ResetAPIKeyCache()
	router, db := makeAPIKeyRouter(t)
	seedKey(t, db, "real-key")

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(APIKeyHeader, "real-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyMiddlewareAuthorizationFallback(t *testing.T) {
	ResetAPIKeyCache()
	router, db := makeAPIKeyRouter(t)
	seedKey(t, db, "real-key")

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "ApiKey real-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyMiddlewareServesFromCache(t *testing.T) {
	ResetAPIKeyCache()
	router, db := makeAPIKeyRouter(t)
	seedKey(t, db, "real-key")

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(APIKeyHeader, "real-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The key is now cached in process; deleting the row does not lock the
	// caller out until the cache entry expires or is reset.
	require.NoError(t, db.Where("value = ?", "real-key").Delete(&models.APIKey{}).Error)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	ResetAPIKeyCache()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware())
	router.POST("/any", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodOptions, "/any", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareUnknownOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware())
	router.GET("/any", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/any", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
