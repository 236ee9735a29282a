// Package urlutil provides URL decomposition, canonicalization and filtering
// helpers for the frontier store. The store itself never rewrites URLs; all
// cleaning happens here, before insertion.
package urlutil

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Options controls canonicalization behavior.
type Options struct {
	Strict    bool                // enforce the query parameter allowlist
	Blacklist map[string]struct{} // registrable domains to reject (nil disables the check)
}

// allowedParams are query parameters kept in strict mode. Everything else is
// assumed to be session or presentation state.
var allowedParams = map[string]struct{}{
	"aid": {}, "article_id": {}, "artnr": {}, "id": {}, "itemid": {},
	"objectid": {}, "p": {}, "page": {}, "pagenum": {}, "page_id": {},
	"pid": {}, "post": {}, "postid": {}, "product_id": {},
}

// controlParams carry language information and survive strict cleaning.
var controlParams = map[string]struct{}{
	"lang": {}, "language": {},
}

// trackingParams are stripped unconditionally.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "fbclid": {}, "gclid": {}, "msclkid": {}, "ref": {},
}

// DefaultBlacklist lists registrable domains of large platforms that are
// rarely useful crawl targets (search engines, social networks, CDNs).
var DefaultBlacklist = map[string]struct{}{
	"amazon.com": {}, "amazonaws.com": {}, "baidu.com": {}, "bit.ly": {},
	"cloudfront.net": {}, "ebay.com": {}, "facebook.com": {}, "flickr.com": {},
	"google.com": {}, "gravatar.com": {}, "instagram.com": {}, "linkedin.com": {},
	"live.com": {}, "netflix.com": {}, "paypal.com": {}, "pinterest.com": {},
	"reddit.com": {}, "soundcloud.com": {}, "telegram.org": {}, "tiktok.com": {},
	"twitch.tv": {}, "twitter.com": {}, "vimeo.com": {}, "vk.com": {},
	"weibo.com": {}, "whatsapp.com": {}, "yahoo.com": {}, "yandex.ru": {},
	"youtube.com": {}, "zoom.us": {},
}

// SplitDomainPath decomposes a canonical URL into its domain key
// (scheme://host, lowercased, no trailing slash) and the remainder
// (path+query+fragment). An empty path becomes "/" so the site root is a
// valid entry. Returns ErrIncompleteURL when scheme or host is missing.
func SplitDomainPath(rawURL string) (string, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrIncompleteURL, rawURL)
	}

	domain := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)

	path := parsed.EscapedPath()
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		path += "#" + parsed.Fragment
	}
	if path == "" {
		path = "/"
	}

	return domain, path, nil
}

// BaseURL returns the scheme://host prefix of a URL, or an empty string if
// the URL has no scheme.
func BaseURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}

// Canonicalize validates and normalizes a raw URL: lowercases scheme and
// host, removes default ports, credentials, fragments and tracking
// parameters, sorts the remaining query and optionally enforces the strict
// parameter allowlist. It returns the canonical URL together with its domain
// key.
func Canonicalize(rawURL string, opts Options) (string, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", "", ErrIncompleteURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "" && scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	if scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrIncompleteURL, rawURL)
	}

	host := strings.ToLower(parsed.Host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	if opts.Blacklist != nil {
		if reg, err := RegistrableDomain(parsed.Hostname()); err == nil {
			if _, bad := opts.Blacklist[reg]; bad {
				return "", "", fmt.Errorf("%w: %q", ErrBlacklistedDomain, reg)
			}
		}
	}

	cleaned := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     parsed.EscapedPath(),
		RawQuery: cleanQuery(parsed.Query(), opts.Strict),
	}
	if cleaned.Path == "" {
		cleaned.Path = "/"
	}

	return cleaned.String(), scheme + "://" + host, nil
}

// cleanQuery drops tracking parameters, applies the allowlist in strict mode
// and re-encodes the remainder in sorted order for a stable representation.
func cleanQuery(values url.Values, strict bool) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		lower := strings.ToLower(key)
		if _, tracked := trackingParams[lower]; tracked {
			continue
		}
		if strict {
			_, allowed := allowedParams[lower]
			_, control := controlParams[lower]
			if !allowed && !control {
				continue
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, val := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

// RegistrableDomain extracts the eTLD+1 of a host (port and credentials
// stripped), e.g. "www.example.co.uk" -> "example.co.uk".
func RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(host)
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if colon := strings.LastIndex(host, ":"); colon >= 0 && !strings.Contains(host, "]") {
		host = host[:colon]
	}
	host = strings.Trim(host, ".")
	if host == "" {
		return "", ErrIncompleteURL
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}

// IsExternal reports whether a link leads to a different site than the
// reference URL. With ignoreSuffix the comparison drops the public suffix,
// so example.co.uk and example.com count as the same site.
func IsExternal(rawURL, reference string, ignoreSuffix bool) bool {
	target := siteLabel(rawURL, ignoreSuffix)
	ref := siteLabel(reference, ignoreSuffix)
	if target == "" || ref == "" {
		return true
	}
	return target != ref
}

// siteLabel returns the registrable domain of a URL, or just its leftmost
// label when the suffix is ignored.
func siteLabel(rawURL string, ignoreSuffix bool) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	reg, err := RegistrableDomain(parsed.Hostname())
	if err != nil {
		return ""
	}
	if !ignoreSuffix {
		return reg
	}
	if dot := strings.IndexByte(reg, '.'); dot > 0 {
		return reg[:dot]
	}
	return reg
}

// FilterURLs returns the sorted, deduplicated subset of links containing the
// given substring. An empty filter keeps everything.
func FilterURLs(links []string, filter string) []string {
	seen := make(map[string]struct{}, len(links))
	var out []string
	for _, link := range links {
		if filter != "" && !strings.Contains(link, filter) {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}
