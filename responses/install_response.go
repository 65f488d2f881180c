package responses

// MatchType tags how a post-install search resolved.
type MatchType string

const (
	MatchUnique     MatchType = "unique"
	MatchHeuristics MatchType = "heuristics"
	MatchAmbiguous  MatchType = "ambiguous"
	MatchIntent     MatchType = "intent"
	MatchNone       MatchType = "none"
)

// TraceBackMatchResponse is the wire shape returned by the post-install
// search endpoint.
type TraceBackMatchResponse struct {
	DeepLinkID       string    `json:"deep_link_id,omitempty"`
	MatchMessage     string    `json:"match_message"`
	MatchType        MatchType `json:"match_type"`
	RequestIPVersion string    `json:"request_ip_version"`
	MatchCampaign    string    `json:"match_campaign,omitempty"`
	UTMMedium        string    `json:"utm_medium,omitempty"`
	UTMSource        string    `json:"utm_source,omitempty"`
}

// MatchMessage returns the human-readable message for a match type.
func MatchMessage(t MatchType) string {
	switch t {
	case MatchUnique:
		return "Link is uniquely matched for this device."
	case MatchHeuristics:
		return "Link is matched for this device by heuristics."
	case MatchAmbiguous:
		return "Fuzzy link with this id"
	case MatchIntent:
		return "Link resolved from intent fallback."
	default:
		return "No matching install found."
	}
}

// SaveLinkResponse is returned by the pre-install write endpoint.
type SaveLinkResponse struct {
	Success   bool   `json:"success"`
	InstallID string `json:"installId,omitempty"`
	Error     string `json:"error,omitempty"`
}
