package controllers

import (
	"net/http"
	"net/url"

	"traceback/models"
	"traceback/utils/logging"

	"github.com/gin-gonic/gin"
)

// GetCampaign resolves a clicked campaign URL to its follow link.
//
// GET /api/v1/campaign?link=<percent-encoded-url>&first_campaign_open=<true|false>
//
// Without a link parameter the default campaign (/default) is used. UTM
// parameters on the clicked URL are copied onto the follow link. The
// first_campaign_open flag drives open/reopen analytics.
func (s *Server) GetCampaign(c *gin.Context) {
	linkPath := "/default"
	var clickedURL *url.URL

	if encoded := c.Query("link"); encoded != "" {
		decoded, err := url.QueryUnescape(encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL encoding"})
			return
		}

		clickedURL, err = url.Parse(decoded)
		if err != nil || clickedURL.Scheme == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL format"})
			return
		}
		linkPath = clickedURL.Path

		if linkPath == "/" || linkPath == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
	}

	link, err := s.findDynamicLinkByPath(c.Request.Context(), linkPath)
	if err != nil {
		logging.Default().Error("error resolving campaign", "path", linkPath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}
	if link.FollowLink == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign has no follow link"})
		return
	}

	switch c.Query("first_campaign_open") {
	case "true":
		s.trackCampaignEvent(link, models.LinkEventOpen)
	case "false":
		s.trackCampaignEvent(link, models.LinkEventReopen)
	}

	followLink := link.FollowLink
	if clickedURL != nil {
		followLink = applyRequestUTM(followLink, clickedURL.Query())
	}

	c.JSON(http.StatusOK, gin.H{"result": followLink})
}

func (s *Server) trackCampaignEvent(link *models.DynamicLink, event models.LinkEventType) {
	if err := (&models.LinkAnalytics{}).TrackLinkEvent(s.DB, link.ID, event); err != nil {
		logging.Default().Warn("campaign analytics not tracked", "linkID", link.ID, "event", event, "error", err)
	}
}
