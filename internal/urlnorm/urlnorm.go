// Package urlnorm reduces user-supplied video links to a canonical form and
// identifies the hosting platform.
package urlnorm

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"vidscribe/internal/services"
)

// Platform names.
const (
	PlatformBilibili = "bilibili"
	PlatformYouTube  = "youtube"
	PlatformGeneric  = "generic"
)

// Normalized is a canonical video reference.
type Normalized struct {
	URL      string
	Platform string
	VideoID  string
}

var (
	bilibiliID = regexp.MustCompile(`^/video/(BV[0-9A-Za-z]{10}|av[0-9]+)/?$`)
	bvid       = regexp.MustCompile(`^BV[0-9A-Za-z]{10}$`)
	youtubeID  = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// trackingParams are dropped from generic URLs. Keys ending in "_" match as
// prefixes.
var trackingParams = []string{
	"utm_", "spm_id_from", "vd_source", "si", "feature", "fbclid", "gclid",
	"share_source", "share_medium", "share_plat", "share_session_id", "share_tag",
	"from", "from_spmid", "t", "unique_k", "timestamp", "bbid", "ts",
}

// Normalize validates raw and returns its canonical form. Bilibili and YouTube
// links collapse to a single watch URL per video when an id is recognized;
// every other http(s) link keeps its scheme, host, path, and non-tracking
// query parameters.
func Normalize(raw string) (Normalized, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Normalized{}, invalid("empty URL", nil)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Normalized{}, invalid(fmt.Sprintf("parse %q", raw), err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Normalized{}, invalid(fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return Normalized{}, invalid(fmt.Sprintf("missing host in %q", raw), nil)
	}

	platform := DetectPlatform(host)
	var (
		n  Normalized
		ok bool
	)
	switch platform {
	case PlatformBilibili:
		n, ok = normalizeBilibili(u, host)
	case PlatformYouTube:
		n, ok = normalizeYouTube(u, host)
	}
	if ok {
		return n, nil
	}
	// Pages without a recognizable id (bangumi episodes, clips, festival
	// pages) are left for the fetcher to resolve.
	n = normalizeGeneric(u, scheme, host)
	n.Platform = platform
	return n, nil
}

// DetectPlatform classifies a URL or bare host name.
func DetectPlatform(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	}
	switch {
	case hostIs(host, "bilibili.com"), hostIs(host, "b23.tv"):
		return PlatformBilibili
	case hostIs(host, "youtube.com"), hostIs(host, "youtu.be"), hostIs(host, "youtube-nocookie.com"):
		return PlatformYouTube
	default:
		return PlatformGeneric
	}
}

func hostIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func normalizeBilibili(u *url.URL, host string) (Normalized, bool) {
	if hostIs(host, "b23.tv") {
		// Short links redirect server-side; the fetcher resolves them.
		short := "https://b23.tv" + strings.TrimRight(u.Path, "/")
		return Normalized{URL: short, Platform: PlatformBilibili}, true
	}
	var id string
	if match := bilibiliID.FindStringSubmatch(u.Path); match != nil {
		id = match[1]
	} else if v := u.Query().Get("bvid"); bvid.MatchString(v) {
		id = v
	} else {
		return Normalized{}, false
	}
	canonical := "https://www.bilibili.com/video/" + id
	if part := u.Query().Get("p"); part != "" && part != "1" {
		canonical += "?p=" + url.QueryEscape(part)
	}
	return Normalized{URL: canonical, Platform: PlatformBilibili, VideoID: id}, true
}

func normalizeYouTube(u *url.URL, host string) (Normalized, bool) {
	var id string
	path := strings.Trim(u.Path, "/")
	switch {
	case hostIs(host, "youtu.be"):
		id, _, _ = strings.Cut(path, "/")
	case path == "watch":
		id = u.Query().Get("v")
	default:
		for _, prefix := range []string{"shorts/", "embed/", "live/", "v/"} {
			if rest, ok := strings.CutPrefix(path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	}
	if !youtubeID.MatchString(id) {
		return Normalized{}, false
	}
	return Normalized{URL: "https://www.youtube.com/watch?v=" + id, Platform: PlatformYouTube, VideoID: id}, true
}

func normalizeGeneric(u *url.URL, scheme, host string) Normalized {
	query := u.Query()
	for key := range query {
		if isTracking(key) {
			query.Del(key)
		}
	}
	out := url.URL{Scheme: scheme, Host: host, Path: u.Path, RawQuery: query.Encode()}
	if port := u.Port(); port != "" {
		out.Host = host + ":" + port
	}
	return Normalized{URL: out.String(), Platform: PlatformGeneric}
}

func isTracking(key string) bool {
	key = strings.ToLower(key)
	for _, param := range trackingParams {
		if strings.HasSuffix(param, "_") && strings.HasPrefix(key, param) {
			return true
		}
		if key == param {
			return true
		}
	}
	return false
}

func invalid(message string, err error) error {
	return services.Wrap(services.ErrInvalidInput, "normalize", "parse url", message, err)
}
