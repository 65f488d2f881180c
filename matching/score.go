// Package matching holds the pure device-fingerprint scoring used by the
// post-install attribution search. Everything here is deterministic and free
// of I/O so the same inputs always produce the same score.
package matching

import (
	"regexp"
	"strings"
)

// DeviceInfo is the device block of a post-install fingerprint as reported by
// the SDK inside the freshly installed app.
type DeviceInfo struct {
	DeviceModelName         string
	LanguageCode            string
	LanguageCodeFromWebView string
	LanguageCodeRaw         string
	AppVersionFromWebView   string
	ScreenResolutionWidth   int
	ScreenResolutionHeight  int
	Timezone                string
}

// Fingerprint is the transient query input for a post-install search. It is
// never persisted.
type Fingerprint struct {
	AppInstallationTime    int64
	BundleID               string
	OSVersion              string
	SDKVersion             string
	UniqueMatchLinkToCheck string
	IntentLink             string
	Device                 DeviceInfo
}

// Candidate is the subset of a stored pre-install record that scoring reads.
type Candidate struct {
	Language     string
	Timezone     string
	ScreenWidth  int
	ScreenHeight int
	UserAgent    string
	IP           string
}

var modelTokenSplit = regexp.MustCompile(`[\s\-_]+`)

// Score compares an incoming fingerprint against a stored heuristics record
// and returns a non-negative match score. Zero means disqualified. observedIP
// and observedUserAgent come from the post-install request itself; both only
// ever add to the score, they never disqualify.
func Score(fp Fingerprint, observedIP, observedUserAgent string, entry Candidate) int {
	device := fp.Device

	// Screen resolution must match exactly in both axes.
	if entry.ScreenWidth != device.ScreenResolutionWidth ||
		entry.ScreenHeight != device.ScreenResolutionHeight {
		return 0
	}

	// Timezone must match case-insensitively.
	if !strings.EqualFold(entry.Timezone, device.Timezone) {
		return 0
	}

	// The WebView-reported language is more comparable to what the browser
	// stored, so it wins over the app-reported code when present.
	deviceLang := device.LanguageCode
	if device.LanguageCodeFromWebView != "" {
		deviceLang = device.LanguageCodeFromWebView
	}
	entryLang := normalizeLanguage(entry.Language)
	deviceLang = normalizeLanguage(deviceLang)

	entryParts := strings.Split(entryLang, "-")
	deviceParts := strings.Split(deviceLang, "-")

	// Primary subtag (en, es, fr, ...) must match.
	if entryParts[0] != deviceParts[0] {
		return 0
	}

	// Resolution, timezone and primary language all matched.
	score := 5

	switch {
	case entryLang == deviceLang:
		// Exact language match including region.
		score += 3
	case len(entryParts) > 1 && len(deviceParts) > 1 && entryParts[1] == deviceParts[1]:
		score += 2
	case len(entryParts) > 1 && len(deviceParts) > 1:
		// Both carry a region but they differ: no bonus, no penalty.
	default:
		// Only one side carries a region.
		score += 1
	}

	// Byte-for-byte matches before normalization are worth a little extra.
	if entry.Timezone == device.Timezone {
		score++
	}
	if entry.Language == device.LanguageCode {
		score++
	}

	// IP equality is a strong signal, but a mismatch is common (WiFi to
	// cellular switches) so it never penalizes.
	if entry.IP != "" && observedIP != "" && entry.IP == observedIP {
		score += 5
	}

	if entry.UserAgent != "" && observedUserAgent != "" {
		appUA := observedUserAgent
		if device.AppVersionFromWebView != "" {
			appUA = device.AppVersionFromWebView
		}
		score += matchWithAppUserAgent(device.DeviceModelName, appUA, entry.UserAgent)
		score += osVersionMatches(fp.OSVersion, entry.UserAgent)
	}

	return score
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
}

// matchWithAppUserAgent scores how strongly the app-reported device model and
// user agent resemble the browser user agent stored pre-install. Range 0-4.
func matchWithAppUserAgent(deviceModel, appUserAgent, browserUserAgent string) int {
	appUA := strings.ToLower(appUserAgent)
	browserUA := strings.ToLower(browserUserAgent)
	model := strings.ToLower(deviceModel)

	score := 0

	// The device model appearing verbatim in the browser UA is the most
	// reliable signal we have.
	if model != "" && strings.Contains(browserUA, model) {
		score += 3
	}

	// Fall back to individual model tokens; models are often formatted
	// differently between the SDK and the browser.
	if score == 0 && model != "" {
		for _, part := range modelTokenSplit.Split(model, -1) {
			if len(part) > 2 && strings.Contains(browserUA, part) {
				score += 2
				break
			}
		}
	}

	// Only look at general UA overlap once some model match exists, otherwise
	// this just piles up false positives.
	if score > 0 {
		commonTokens := []string{"mobile", "safari", "webkit", "chrome", "version"}
		hasCommon := false
		for _, token := range commonTokens {
			if strings.Contains(appUA, token) && strings.Contains(browserUA, token) {
				hasCommon = true
				break
			}
		}
		if !hasCommon {
			browserTokens := map[string]bool{}
			for _, token := range strings.Fields(browserUA) {
				if len(token) > 3 {
					browserTokens[token] = true
				}
			}
			for _, token := range strings.Fields(appUA) {
				if len(token) > 3 && browserTokens[token] {
					hasCommon = true
					break
				}
			}
		}
		if hasCommon {
			score++
		}
	}

	return score
}

var leadingMajorVersion = regexp.MustCompile(`^(\d+)`)

// osVersionMatches scores the app-reported OS version against the stored
// browser user agent. Range 0-3; major-version compatibility is enough for a
// partial score so minor version drift does not block matches.
func osVersionMatches(osVersionFromApp, browserUserAgent string) int {
	if osVersionFromApp == "" || browserUserAgent == "" {
		return 0
	}

	browserUA := strings.ToLower(browserUserAgent)
	appVersion := strings.ToLower(osVersionFromApp)

	m := leadingMajorVersion.FindString(appVersion)
	if m == "" {
		return 0
	}

	if strings.Contains(browserUA, appVersion) {
		return 3
	}

	// iOS user agents report versions with underscores (17_4 for 17.4).
	if strings.Contains(browserUA, strings.ReplaceAll(appVersion, ".", "_")) {
		return 3
	}

	for _, pattern := range []string{"ios " + m, "android " + m, m + "_", "os " + m} {
		if strings.Contains(browserUA, pattern) {
			return 2
		}
	}

	return 0
}
