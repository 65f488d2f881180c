package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"traceback/middlewares"
	"traceback/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testAPIKey = "test-api-key"

// newTestServer wires a Server against an in-memory database with the full
// route table and a seeded API key.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to connect to in-memory database")

	err = db.AutoMigrate(
		&models.InstallRecord{},
		&models.DynamicLink{},
		&models.APIKey{},
		&models.LinkAnalytics{},
	)
	require.NoError(t, err, "failed to migrate tables")

	server := &Server{DB: db}
	server.SetupRouter()

	middlewares.ResetAPIKeyCache()
	key := models.APIKey{ID: uuid.New(), Value: testAPIKey, Label: "test"}
	_, err = key.SaveAPIKey(db)
	require.NoError(t, err)

	return server
}

// newJSONRequest builds an authenticated JSON request against the router.
func newJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middlewares.APIKeyHeader, testAPIKey)
	return req
}

func doJSON(t *testing.T, server *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, newJSONRequest(t, method, target, body))
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
