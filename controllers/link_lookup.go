package controllers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"traceback/cache"
	"traceback/models"
	"traceback/utils/logging"
)

const (
	linkPathCachePrefix = "traceback:campaign:path:"
	linkPathCacheTTL    = 5 * time.Minute

	// tracebackIDParam rides inside the nested link of a dynamic link URL and
	// names the install record the browser wrote for that click.
	tracebackIDParam = "_tracebackid"
)

// findDynamicLinkByPath resolves a registered campaign path, reading through
// the redis cache when it is up. A nil link without error means unregistered.
func (s *Server) findDynamicLinkByPath(ctx context.Context, path string) (*models.DynamicLink, error) {
	cacheKey := linkPathCachePrefix + path

	if cached, err := cache.Get(ctx, cacheKey); err == nil && cached != "" {
		var link models.DynamicLink
		if err := json.Unmarshal([]byte(cached), &link); err == nil {
			return &link, nil
		}
	}

	link, err := (&models.DynamicLink{}).FindDynamicLinkByPath(s.DB, path)
	if err != nil || link == nil {
		return link, err
	}

	if payload, err := json.Marshal(link); err == nil {
		if err := cache.Set(ctx, cacheKey, payload, linkPathCacheTTL); err != nil {
			logging.Default().Debug("campaign path cache write skipped", "path", path, "error", err)
		}
	}
	return link, nil
}

// invalidateLinkPathCache drops all cached path lookups after a link
// mutation. Best effort.
func invalidateLinkPathCache(ctx context.Context) {
	if err := cache.DeleteByPrefix(ctx, linkPathCachePrefix); err != nil {
		logging.Default().Warn("campaign path cache invalidation failed", "error", err)
	}
}

// linkExtraction is the decomposition of a dynamic link URL whose "link"
// query parameter nests the real target.
type linkExtraction struct {
	nestedURL          *url.URL
	tracebackID        string
	nestedURLWithoutID *url.URL
}

// extractNestedLink pulls the nested target URL out of a dynamic link's
// "link" query parameter, along with the traceback record ID if the target
// carries one. Returns nil when the input is not a URL or has no nested link.
func extractNestedLink(rawURL string) *linkExtraction {
	outer, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	encoded := outer.Query().Get("link")
	if encoded == "" {
		return nil
	}

	// The link parameter may be double-encoded when it is itself a URL.
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		decoded = encoded
	}
	nested, err := url.Parse(decoded)
	if err != nil || nested.Scheme == "" {
		return nil
	}

	stripped := *nested
	query := stripped.Query()
	tracebackID := query.Get(tracebackIDParam)
	query.Del(tracebackIDParam)
	stripped.RawQuery = query.Encode()

	return &linkExtraction{
		nestedURL:          nested,
		tracebackID:        tracebackID,
		nestedURLWithoutID: &stripped,
	}
}

// resolveIntentLink runs the combined helper over an intent fallback URL:
// registered campaign path first, then the nested target-URL parameter.
// Returns the resolved target, the campaign when one matched, and whether
// anything resolved at all.
func (s *Server) resolveIntentLink(ctx context.Context, intentLink string) (string, *models.DynamicLink, bool) {
	parsed, err := url.Parse(intentLink)
	if err != nil {
		return "", nil, false
	}

	if path := parsed.Path; path != "" && path != "/" {
		link, err := s.findDynamicLinkByPath(ctx, path)
		if err != nil {
			logging.Default().Warn("intent link campaign lookup failed", "path", path, "error", err)
		} else if link != nil && link.FollowLink != "" {
			return link.FollowLink, link, true
		}
	}

	if extraction := extractNestedLink(intentLink); extraction != nil {
		return extraction.nestedURLWithoutID.String(), nil, true
	}

	return "", nil, false
}

// applyRequestUTM copies utm_-prefixed query parameters from the incoming
// request onto a resolved target URL.
func applyRequestUTM(target string, query url.Values) string {
	targetURL, err := url.Parse(target)
	if err != nil {
		return target
	}
	merged := targetURL.Query()
	for key, values := range query {
		if strings.HasPrefix(key, "utm_") && len(values) > 0 {
			merged.Set(key, values[0])
		}
	}
	targetURL.RawQuery = merged.Encode()
	return targetURL.String()
}
