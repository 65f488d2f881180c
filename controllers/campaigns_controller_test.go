package controllers

import (
	"net/http"
	"net/url"
	"testing"

	"traceback/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCampaignResolvesClickedLink(t *testing.T) {
	server := newTestServer(t)
	link := seedCampaign(t, server, "/promo", "https://store.example.com/app?utm_medium=cpc")

	clicked := "https://l.example.com/promo?utm_source=newsletter"
	w := doJSON(t, server, http.MethodGet,
		"/api/v1/campaign?first_campaign_open=true&link="+url.QueryEscape(clicked), nil)
	require.Equal(t, http.StatusOK, w.Code)

	result, _ := decodeBody(t, w)["result"].(string)
	parsed, err := url.Parse(result)
	require.NoError(t, err)
	assert.Equal(t, "store.example.com", parsed.Host)
	assert.Equal(t, "cpc", parsed.Query().Get("utm_medium"))
	assert.Equal(t, "newsletter", parsed.Query().Get("utm_source"))

	rows, err := (&models.LinkAnalytics{}).FindLinkAnalytics(server.DB, link.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Opens)
	assert.Equal(t, 0, rows[0].Reopens)
}

func TestGetCampaignTracksReopens(t *testing.T) {
	server := newTestServer(t)
	link := seedCampaign(t, server, "/promo", "https://store.example.com/app")

	clicked := "https://l.example.com/promo"
	w := doJSON(t, server, http.MethodGet,
		"/api/v1/campaign?first_campaign_open=false&link="+url.QueryEscape(clicked), nil)
	require.Equal(t, http.StatusOK, w.Code)

	rows, err := (&models.LinkAnalytics{}).FindLinkAnalytics(server.DB, link.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Reopens)
}

func TestGetCampaignFallsBackToDefault(t *testing.T) {
	server := newTestServer(t)
	seedCampaign(t, server, "/default", "https://store.example.com/default")

	w := doJSON(t, server, http.MethodGet, "/api/v1/campaign", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://store.example.com/default", decodeBody(t, w)["result"])
}

func TestGetCampaignErrors(t *testing.T) {
	server := newTestServer(t)

	t.Run("invalid encoding", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/campaign?link=%25zz", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid URL encoding", decodeBody(t, w)["error"])
	})

	t.Run("not a url", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/campaign?link=not-a-url", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid URL format", decodeBody(t, w)["error"])
	})

	t.Run("root path", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet,
			"/api/v1/campaign?link="+url.QueryEscape("https://l.example.com/"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unregistered path", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet,
			"/api/v1/campaign?link="+url.QueryEscape("https://l.example.com/missing"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Campaign not found", decodeBody(t, w)["error"])
	})
}
