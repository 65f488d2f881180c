package controllers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"traceback/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savePayload() map[string]any {
	return map[string]any{
		"language":         "en-GB",
		"languages":        []string{"en-GB", "en"},
		"timezone":         "Europe/London",
		"screenWidth":      390,
		"screenHeight":     844,
		"devicePixelRatio": 3.0,
		"platform":         "iPhone",
		"userAgent":        "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4_1 like Mac OS X) AppleWebKit/605.1.15",
	}
}

func searchPayload() map[string]any {
	return map[string]any{
		"appInstallationTime": time.Now().Unix(),
		"bundleId":            "com.example.app",
		"osVersion":           "17.4.1",
		"sdkVersion":          "1.2.0",
		"device": map[string]any{
			"deviceModelName":        "iPhone 15 Pro",
			"languageCode":           "en-GB",
			"languageCodeRaw":        "en_GB",
			"screenResolutionWidth":  390,
			"screenResolutionHeight": 844,
			"timezone":               "Europe/London",
		},
	}
}

func seedInstallRecord(t *testing.T, s *Server, mutate func(*models.InstallRecord)) *models.InstallRecord {
	t.Helper()
	record := &models.InstallRecord{
		InstallID:    uuid.NewString(),
		Language:     "en-GB",
		Languages:    []string{"en-GB", "en"},
		Timezone:     "Europe/London",
		ScreenWidth:  390,
		ScreenHeight: 844,
		Platform:     "iPhone",
		CreatedAt:    time.Now(),
	}
	if mutate != nil {
		mutate(record)
	}
	_, err := record.SaveInstallRecord(s.DB)
	require.NoError(t, err)
	return record
}

func installCount(t *testing.T, s *Server) int64 {
	t.Helper()
	count, err := (&models.InstallRecord{}).CountInstallRecords(s.DB)
	require.NoError(t, err)
	return count
}

func seedCampaign(t *testing.T, s *Server, path, followLink string) *models.DynamicLink {
	t.Helper()
	link := &models.DynamicLink{Path: path, Title: "Test", FollowLink: followLink}
	link.Prepare()
	_, err := link.SaveDynamicLink(s.DB)
	require.NoError(t, err)
	return link
}

func TestPreInstallSaveLink(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/v1/preinstall/save-link", savePayload())
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	installID, _ := body["installId"].(string)
	assert.NotEmpty(t, installID)

	record, err := (&models.InstallRecord{}).FindInstallRecordByID(server.DB, installID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "en-GB", record.Language)
	assert.Equal(t, 390, record.ScreenWidth)
	assert.Equal(t, 844, record.ScreenHeight)
	assert.Equal(t, []string{"en-GB", "en"}, record.Languages)
}

func TestPreInstallSaveLinkCapturesForwardedIP(t *testing.T) {
	server := newTestServer(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/preinstall/save-link", savePayload())
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	installID := decodeBody(t, w)["installId"].(string)
	record, err := (&models.InstallRecord{}).FindInstallRecordByID(server.DB, installID)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.IP)
	assert.Equal(t, "203.0.113.9", *record.IP)
}

func TestPreInstallSaveLinkRejectsInvalidPayload(t *testing.T) {
	server := newTestServer(t)

	payload := savePayload()
	delete(payload, "screenHeight")

	w := doJSON(t, server, http.MethodPost, "/api/v1/preinstall/save-link", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid payload", body["error"])
	assert.NotEmpty(t, body["details"])
	assert.Equal(t, int64(0), installCount(t, server))
}

func TestPostInstallUniqueMatchConsumesRecord(t *testing.T) {
	server := newTestServer(t)
	seedInstallRecord(t, server, func(r *models.InstallRecord) {
		r.Clipboard = "https://example.com/promo"
	})

	payload := searchPayload()
	payload["uniqueMatchLinkToCheck"] = "https://example.com/promo"

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "unique", body["match_type"])
	assert.Equal(t, "Link is uniquely matched for this device.", body["match_message"])
	assert.Equal(t, "https://example.com/promo", body["deep_link_id"])
	assert.Equal(t, "IP_V4", body["request_ip_version"])
	assert.Equal(t, int64(0), installCount(t, server))

	// The record is single use; the same query now finds nothing.
	w = doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decodeBody(t, w)["match_type"])
}

func TestPostInstallUniqueMatchByEmbeddedRecordID(t *testing.T) {
	server := newTestServer(t)
	record := seedInstallRecord(t, server, nil)

	nested := "https://target.example.com/item?_tracebackid=" + record.InstallID
	payload := searchPayload()
	payload["uniqueMatchLinkToCheck"] = "https://l.example.com/promo?link=" + url.QueryEscape(nested)

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "unique", body["match_type"])
	assert.Equal(t, int64(0), installCount(t, server))
}

func TestPostInstallHeuristicsMatch(t *testing.T) {
	server := newTestServer(t)
	seedInstallRecord(t, server, func(r *models.InstallRecord) {
		r.Clipboard = "https://example.com/sale"
	})

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", searchPayload())
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "heuristics", body["match_type"])
	assert.Equal(t, "Link is matched for this device by heuristics.", body["match_message"])
	assert.Equal(t, "https://example.com/sale", body["deep_link_id"])
	assert.Equal(t, int64(0), installCount(t, server))
}

func TestPostInstallAmbiguousMatch(t *testing.T) {
	server := newTestServer(t)
	seedInstallRecord(t, server, nil)
	seedInstallRecord(t, server, nil)

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", searchPayload())
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ambiguous", body["match_type"])
	assert.Equal(t, "Fuzzy link with this id", body["match_message"])
	assert.Equal(t, int64(1), installCount(t, server))
}

func TestPostInstallNoMatchLeavesStoreUntouched(t *testing.T) {
	server := newTestServer(t)
	seedInstallRecord(t, server, func(r *models.InstallRecord) {
		r.Language = "es-ES"
		r.Languages = []string{"es-ES", "es"}
	})

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", searchPayload())
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "none", body["match_type"])
	assert.Equal(t, "No matching install found.", body["match_message"])
	assert.Equal(t, int64(1), installCount(t, server))
}

func TestPostInstallOutsideInstallWindow(t *testing.T) {
	server := newTestServer(t)
	seedInstallRecord(t, server, nil)

	payload := searchPayload()
	// The app claims it was installed more than the tolerance before the
	// record was written.
	payload["appInstallationTime"] = time.Now().Add(-60 * time.Second).Unix()

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decodeBody(t, w)["match_type"])
	assert.Equal(t, int64(1), installCount(t, server))
}

func TestPostInstallCampaignSubstitution(t *testing.T) {
	server := newTestServer(t)
	link := seedCampaign(t, server, "/promo", "https://store.example.com/app?utm_medium=cpc&utm_source=traceback")
	seedInstallRecord(t, server, func(r *models.InstallRecord) {
		r.Clipboard = "https://l.example.com/promo"
	})

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", searchPayload())
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "heuristics", body["match_type"])
	assert.Equal(t, "https://store.example.com/app?utm_medium=cpc&utm_source=traceback", body["deep_link_id"])
	assert.Equal(t, link.ID.String(), body["match_campaign"])
	assert.Equal(t, "cpc", body["utm_medium"])
	assert.Equal(t, "traceback", body["utm_source"])

	rows, err := (&models.LinkAnalytics{}).FindLinkAnalytics(server.DB, link.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Installs)
}

func TestPostInstallIntentFallbackToCampaign(t *testing.T) {
	server := newTestServer(t)
	link := seedCampaign(t, server, "/spring", "https://store.example.com/app?utm_source=spring")

	payload := searchPayload()
	payload["intentLink"] = "https://l.example.com/spring"

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "intent", body["match_type"])
	assert.Equal(t, "Link resolved from intent fallback.", body["match_message"])
	assert.Equal(t, "https://store.example.com/app?utm_source=spring", body["deep_link_id"])
	assert.Equal(t, link.ID.String(), body["match_campaign"])
	assert.Equal(t, "spring", body["utm_source"])
}

func TestPostInstallIntentFallbackToNestedLink(t *testing.T) {
	server := newTestServer(t)

	nested := "https://target.example.com/item?_tracebackid=gone"
	payload := searchPayload()
	payload["intentLink"] = "https://l.example.com/go?link=" + url.QueryEscape(nested)

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "intent", body["match_type"])
	assert.Equal(t, "https://target.example.com/item", body["deep_link_id"])
	assert.Empty(t, body["match_campaign"])
}

func TestPostInstallRecordBeatsIntentLink(t *testing.T) {
	server := newTestServer(t)
	seedCampaign(t, server, "/spring", "https://store.example.com/app")
	seedInstallRecord(t, server, func(r *models.InstallRecord) {
		r.Clipboard = "https://example.com/sale"
	})

	payload := searchPayload()
	payload["intentLink"] = "https://l.example.com/spring"

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "heuristics", body["match_type"])
	assert.Equal(t, "https://example.com/sale", body["deep_link_id"])
}

func TestPostInstallRejectsInvalidPayload(t *testing.T) {
	server := newTestServer(t)

	payload := searchPayload()
	delete(payload, "bundleId")

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Invalid payload", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestPostInstallRejectsMalformedUniqueLink(t *testing.T) {
	server := newTestServer(t)

	payload := searchPayload()
	payload["uniqueMatchLinkToCheck"] = "not a url"

	w := doJSON(t, server, http.MethodPost, "/api/v1/postinstall/search-link", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsumeInstallRecordIsBestEffort(t *testing.T) {
	server := newTestServer(t)
	record := seedInstallRecord(t, server, nil)

	// Two racing matches may both try to consume the same record; the second
	// delete hits nothing and must stay silent.
	server.consumeInstallRecord(record.InstallID)
	server.consumeInstallRecord(record.InstallID)
	assert.Equal(t, int64(0), installCount(t, server))
}

func TestSearchLinkMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/api/v1/postinstall/search-link", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method Not Allowed", w.Body.String())
}

func TestInstallEndpointsRequireAPIKey(t *testing.T) {
	server := newTestServer(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/preinstall/save-link", savePayload())
	req.Header.Del("X-Traceback-API-Key")
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = newJSONRequest(t, http.MethodPost, "/api/v1/preinstall/save-link", savePayload())
	req.Header.Set("X-Traceback-API-Key", "not-a-key")
	w = httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
