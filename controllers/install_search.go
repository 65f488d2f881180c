package controllers

import (
	"context"
	"sort"

	"traceback/matching"
	"traceback/models"
	"traceback/responses"
)

// matchCandidate pairs a stored record with its score for one search.
type matchCandidate struct {
	Record models.InstallRecord
	Score  int
}

type heuristicsResult struct {
	entry     *models.InstallRecord
	multiple  bool
	sameScore bool
	analytics []DebugEvent
}

// postInstallResult is the resolver's terminal state for one request.
type postInstallResult struct {
	entry      *models.InstallRecord
	matchType  responses.MatchType
	deepLinkID string              // set for intent results only
	campaign   *models.DynamicLink // set for intent results that hit a campaign
	analytics  []DebugEvent
}

// searchPostInstall runs the resolution strategies in priority order:
// clipboard-exact, heuristic scan, intent-link fallback. The exact match is
// authoritative when present; the heuristic scan always runs so the two can
// be cross-checked. Store read errors propagate, everything else is collected
// as diagnostics.
func (s *Server) searchPostInstall(ctx context.Context, fp matching.Fingerprint, ip, userAgent string) (postInstallResult, error) {
	result := postInstallResult{matchType: responses.MatchNone}

	heur, err := s.searchByHeuristics(fp, ip, userAgent)
	if err != nil {
		return result, err
	}

	if fp.UniqueMatchLinkToCheck != "" {
		entry, diags, err := s.searchByClipboard(fp.UniqueMatchLinkToCheck)
		if err != nil {
			return result, err
		}
		result.analytics = append(result.analytics, diags...)

		if entry != nil {
			result.entry = entry
			result.matchType = responses.MatchUnique
			// Consistency check only; the unique match always wins.
			if heur.entry != nil && heur.entry.InstallID == entry.InstallID {
				result.analytics = append(result.analytics, DebugEvent{
					Type:    EventDebugHeuristicsSuccess,
					Message: "heuristics would have returned the same result as the unique search",
				})
			} else {
				result.analytics = append(result.analytics, DebugEvent{
					Type:    EventDebugHeuristicsFailure,
					Message: "heuristics would have returned a different result than the unique search",
					Debug: map[string]any{
						"unique":     entry,
						"heuristics": heur.entry,
					},
				})
			}
		}
	}

	if result.entry == nil {
		result.analytics = append(result.analytics, heur.analytics...)
		if heur.entry != nil {
			result.entry = heur.entry
			if heur.multiple {
				result.matchType = responses.MatchAmbiguous
			} else {
				result.matchType = responses.MatchHeuristics
			}
		}
	}

	if fp.IntentLink != "" {
		s.applyIntentLink(ctx, fp, &result)
	}

	return result, nil
}

// applyIntentLink either falls back to the intent link when nothing matched,
// or cross-checks a found record against it.
func (s *Server) applyIntentLink(ctx context.Context, fp matching.Fingerprint, result *postInstallResult) {
	if result.entry == nil {
		deepLink, campaign, ok := s.resolveIntentLink(ctx, fp.IntentLink)
		if !ok {
			result.analytics = append(result.analytics, DebugEvent{
				Type:    EventIntentLinkMismatch,
				Message: "intent link did not resolve to a campaign or nested target",
				Debug:   map[string]any{"intentLink": fp.IntentLink},
			})
			return
		}
		result.matchType = responses.MatchIntent
		result.deepLinkID = deepLink
		result.campaign = campaign
		return
	}

	// A record matched; note whether the OS-supplied intent link agrees with
	// what the browser stored. Diagnostic only.
	extraction := extractNestedLink(result.entry.Clipboard)
	switch {
	case extraction == nil:
		result.analytics = append(result.analytics, DebugEvent{
			Type:    EventIntentLinkMismatch,
			Message: "found entry did not include a nested link param",
			Debug: map[string]any{
				"intentLink": fp.IntentLink,
				"result":     result.entry,
			},
		})
	case extraction.nestedURLWithoutID.String() != fp.IntentLink &&
		extraction.nestedURL.String() != fp.IntentLink:
		result.analytics = append(result.analytics, DebugEvent{
			Type:    EventIntentLinkMismatch,
			Message: "intent link disagrees with the matched record",
			Debug: map[string]any{
				"intentLink": fp.IntentLink,
				"link":       extraction.nestedURLWithoutID.String(),
				"result":     result.entry,
			},
		})
	default:
		result.analytics = append(result.analytics, DebugEvent{
			Type:    EventIntentLinkMatch,
			Message: "intent link agrees with the matched record",
			Debug:   map[string]any{"intentLink": fp.IntentLink},
		})
	}
}

// searchByClipboard is the exact-match strategy over the stored clipboard
// link. When the equality query misses, the link may still carry the record
// ID inside its nested target, so try a point lookup by that.
func (s *Server) searchByClipboard(uniqueMatchLink string) (*models.InstallRecord, []DebugEvent, error) {
	records, err := (&models.InstallRecord{}).FindInstallRecordsByClipboard(s.DB, uniqueMatchLink)
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		extraction := extractNestedLink(uniqueMatchLink)
		if extraction == nil || extraction.tracebackID == "" {
			return nil, []DebugEvent{{
				Type:    EventPasteboardNotFound,
				Message: "no match found with pasteboard content, and no record id in url",
				Debug:   uniqueMatchLink,
			}}, nil
		}

		record, err := (&models.InstallRecord{}).FindInstallRecordByID(s.DB, extraction.tracebackID)
		if err != nil {
			return nil, nil, err
		}
		if record == nil {
			return nil, []DebugEvent{{
				Type:    EventPasteboardNotFound,
				Message: "no match found with pasteboard content nor by its record id",
				Debug:   uniqueMatchLink,
			}}, nil
		}
		return record, nil, nil
	}

	var diags []DebugEvent
	if len(records) > 1 {
		diags = append(diags, DebugEvent{
			Type:    EventPasteboardMultipleMatches,
			Message: "multiple matches found with pasteboard content",
			Debug:   uniqueMatchLink,
		})
	}
	return &records[0], diags, nil
}

// searchByHeuristics scans the whole unresolved set, scores every record and
// keeps the ones inside the install-time tolerance window. O(n) per request;
// the retention sweeper keeps n small.
func (s *Server) searchByHeuristics(fp matching.Fingerprint, ip, userAgent string) (heuristicsResult, error) {
	records, err := (&models.InstallRecord{}).FindAllInstallRecords(s.DB)
	if err != nil {
		return heuristicsResult{}, err
	}

	candidates := make([]matchCandidate, 0, len(records))
	for _, record := range records {
		entryIP := ""
		if record.IP != nil {
			entryIP = *record.IP
		}
		score := matching.Score(fp, ip, userAgent, matching.Candidate{
			Language:     record.Language,
			Timezone:     record.Timezone,
			ScreenWidth:  record.ScreenWidth,
			ScreenHeight: record.ScreenHeight,
			UserAgent:    record.UserAgent,
			IP:           entryIP,
		})
		if score > 0 && matching.WithinInstallWindow(fp.AppInstallationTime, record.CreatedAt.UnixMilli()) {
			candidates = append(candidates, matchCandidate{Record: record, Score: score})
		}
	}

	if len(candidates) == 0 {
		return heuristicsResult{
			analytics: []DebugEvent{{
				Type:    EventHeuristicsNotFound,
				Message: "no match found with heuristics search",
				Debug: map[string]any{
					"fingerprint": fp,
					"ip":          ip,
					"userAgent":   userAgent,
				},
			}},
		}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	result := heuristicsResult{entry: &candidates[0].Record}
	if len(candidates) > 1 {
		result.multiple = true
		result.sameScore = candidates[0].Score == candidates[1].Score
		eventType := EventHeuristicsMultipleMatches
		if result.sameScore {
			eventType = EventHeuristicsMultipleMatchesSameScore
		}
		result.analytics = append(result.analytics, DebugEvent{
			Type:    eventType,
			Message: "multiple heuristics matches",
			Debug: map[string]any{
				"fingerprint": fp,
				"ip":          ip,
				"userAgent":   userAgent,
				"matches":     candidates,
			},
		})
	}
	return result, nil
}
