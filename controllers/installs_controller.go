package controllers

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"traceback/matching"
	"traceback/models"
	"traceback/responses"
	"traceback/utils/logging"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// deviceHeuristicsRequest is the pre-install write payload computed by the
// browser-side agent. Only the screen dimensions are mandatory.
type deviceHeuristicsRequest struct {
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	Timezone            string   `json:"timezone"`
	ScreenWidth         *int     `json:"screenWidth" binding:"required"`
	ScreenHeight        *int     `json:"screenHeight" binding:"required"`
	DevicePixelRatio    float64  `json:"devicePixelRatio"`
	Platform            string   `json:"platform"`
	UserAgent           string   `json:"userAgent"`
	ConnectionType      *string  `json:"connectionType"`
	HardwareConcurrency *int     `json:"hardwareConcurrency"`
	Memory              *float64 `json:"memory"`
	ColorDepth          *int     `json:"colorDepth"`
	Clipboard           string   `json:"clipboard"`
}

type deviceInfoRequest struct {
	DeviceModelName         string `json:"deviceModelName" binding:"required"`
	LanguageCode            string `json:"languageCode" binding:"required"`
	LanguageCodeFromWebView string `json:"languageCodeFromWebView"`
	LanguageCodeRaw         string `json:"languageCodeRaw" binding:"required"`
	AppVersionFromWebView   string `json:"appVersionFromWebView"`
	ScreenResolutionWidth   *int   `json:"screenResolutionWidth" binding:"required"`
	ScreenResolutionHeight  *int   `json:"screenResolutionHeight" binding:"required"`
	Timezone                string `json:"timezone" binding:"required"`
}

// deviceFingerprintRequest is the post-install search payload sent by the SDK
// on first launch.
type deviceFingerprintRequest struct {
	AppInstallationTime    *int64             `json:"appInstallationTime" binding:"required"`
	BundleID               string             `json:"bundleId" binding:"required"`
	OSVersion              string             `json:"osVersion" binding:"required"`
	SDKVersion             string             `json:"sdkVersion" binding:"required"`
	UniqueMatchLinkToCheck string             `json:"uniqueMatchLinkToCheck" binding:"omitempty,url"`
	IntentLink             string             `json:"intentLink" binding:"omitempty,url"`
	Device                 *deviceInfoRequest `json:"device" binding:"required"`
}

// validationDetails turns validator errors into the field-level details list
// clients depend on.
func validationDetails(err error) []gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, gin.H{
				"field":   fe.Namespace(),
				"message": "failed on the '" + fe.Tag() + "' rule",
			})
		}
		return details
	}
	return []gin.H{{"message": err.Error()}}
}

// clientIP takes the first forwarded-for entry, falling back to the socket
// address.
func clientIP(c *gin.Context) string {
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.RemoteIP()
}

func ipVersion(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed != nil && parsed.To4() == nil {
		return "IP_V6"
	}
	return "IP_V4"
}

// PreInstallSaveLink stores a device-heuristics snapshot written by the
// browser before the app exists on the device.
func (s *Server) PreInstallSaveLink(c *gin.Context) {
	var payload deviceHeuristicsRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid payload",
			"details": validationDetails(err),
		})
		return
	}

	record := models.InstallRecord{
		InstallID:           uuid.NewString(),
		Language:            payload.Language,
		Languages:           payload.Languages,
		Timezone:            payload.Timezone,
		ScreenWidth:         *payload.ScreenWidth,
		ScreenHeight:        *payload.ScreenHeight,
		DevicePixelRatio:    payload.DevicePixelRatio,
		Platform:            payload.Platform,
		UserAgent:           payload.UserAgent,
		ConnectionType:      payload.ConnectionType,
		HardwareConcurrency: payload.HardwareConcurrency,
		Memory:              payload.Memory,
		ColorDepth:          payload.ColorDepth,
		Clipboard:           payload.Clipboard,
		CreatedAt:           time.Now(),
	}
	if ip := clientIP(c); ip != "" {
		record.IP = &ip
	}

	if _, err := record.SaveInstallRecord(s.DB); err != nil {
		logging.Default().Error("error saving device heuristics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal Server Error",
		})
		return
	}

	preinstallSaves.Inc()
	s.maybeSweepOldInstalls()

	c.JSON(http.StatusOK, responses.SaveLinkResponse{Success: true, InstallID: record.InstallID})
}

// PostInstallSearchLink recovers the pre-install link for a freshly launched
// app instance and consumes the matched record.
func (s *Server) PostInstallSearchLink(c *gin.Context) {
	var payload deviceFingerprintRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid payload",
			"details": validationDetails(err),
		})
		return
	}

	fp := matching.Fingerprint{
		AppInstallationTime:    *payload.AppInstallationTime,
		BundleID:               payload.BundleID,
		OSVersion:              payload.OSVersion,
		SDKVersion:             payload.SDKVersion,
		UniqueMatchLinkToCheck: payload.UniqueMatchLinkToCheck,
		IntentLink:             payload.IntentLink,
		Device: matching.DeviceInfo{
			DeviceModelName:         payload.Device.DeviceModelName,
			LanguageCode:            payload.Device.LanguageCode,
			LanguageCodeFromWebView: payload.Device.LanguageCodeFromWebView,
			LanguageCodeRaw:         payload.Device.LanguageCodeRaw,
			AppVersionFromWebView:   payload.Device.AppVersionFromWebView,
			ScreenResolutionWidth:   *payload.Device.ScreenResolutionWidth,
			ScreenResolutionHeight:  *payload.Device.ScreenResolutionHeight,
			Timezone:                payload.Device.Timezone,
		},
	}

	ip := clientIP(c)
	userAgent := c.Request.UserAgent()

	result, err := s.searchPostInstall(c.Request.Context(), fp, ip, userAgent)
	if err != nil {
		logging.Default().Error("error matching fingerprint", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	EmitDebugEvents(result.analytics)

	response := responses.TraceBackMatchResponse{
		MatchType:        result.matchType,
		MatchMessage:     responses.MatchMessage(result.matchType),
		RequestIPVersion: ipVersion(ip),
	}

	switch {
	case result.entry != nil:
		s.consumeInstallRecord(result.entry.InstallID)
		response.DeepLinkID = s.substituteCampaignLink(c, result.entry.Clipboard, &response)
	case result.matchType == responses.MatchIntent:
		response.DeepLinkID = applyRequestUTM(result.deepLinkID, c.Request.URL.Query())
		if result.campaign != nil {
			response.MatchCampaign = result.campaign.ID.String()
			s.trackCampaignInstall(result.campaign.ID)
		}
		fillResponseUTM(&response)
	default:
		response.DeepLinkID = payload.UniqueMatchLinkToCheck
	}

	postinstallMatches.WithLabelValues(string(result.matchType)).Inc()
	c.JSON(http.StatusOK, response)
}

// consumeInstallRecord deletes a matched record. Single-use semantics are
// best effort: if a concurrent request already consumed it, the failure is
// logged and the response is unaffected.
func (s *Server) consumeInstallRecord(installID string) {
	if err := (&models.InstallRecord{}).DeleteInstallRecord(s.DB, installID); err != nil {
		consumeDeleteFailures.Inc()
		logging.Default().Error("could not remove matched install record", "installID", installID, "error", err)
	}
}

// substituteCampaignLink swaps the raw stored link for the campaign follow
// link when the stored link's path is a registered campaign, carrying any
// utm_ parameters from this request along. Returns the final deep link.
func (s *Server) substituteCampaignLink(c *gin.Context, storedLink string, response *responses.TraceBackMatchResponse) string {
	parsed, err := url.Parse(storedLink)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return storedLink
	}

	link, err := s.findDynamicLinkByPath(c.Request.Context(), parsed.Path)
	if err != nil {
		logging.Default().Warn("campaign lookup for matched link failed", "error", err)
		return storedLink
	}
	if link == nil || link.FollowLink == "" {
		return storedLink
	}

	response.MatchCampaign = link.ID.String()
	s.trackCampaignInstall(link.ID)

	target := applyRequestUTM(link.FollowLink, c.Request.URL.Query())
	response.DeepLinkID = target
	fillResponseUTM(response)
	return response.DeepLinkID
}

// fillResponseUTM lifts utm_medium/utm_source off the final deep link into
// their dedicated response fields.
func fillResponseUTM(response *responses.TraceBackMatchResponse) {
	parsed, err := url.Parse(response.DeepLinkID)
	if err != nil {
		return
	}
	query := parsed.Query()
	response.UTMMedium = query.Get("utm_medium")
	response.UTMSource = query.Get("utm_source")
}

// trackCampaignInstall records the install event on the campaign's daily
// counters. Best effort.
func (s *Server) trackCampaignInstall(linkID uuid.UUID) {
	if err := (&models.LinkAnalytics{}).TrackLinkEvent(s.DB, linkID, models.LinkEventInstall); err != nil {
		logging.Default().Warn("install analytics not tracked", "linkID", linkID, "error", err)
	}
}
