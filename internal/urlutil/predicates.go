package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// navigationRe matches archive, category and pagination pages that
	// exist for site navigation rather than content.
	navigationRe = regexp.MustCompile(`(?i)[/_-](archives?|author|blog|cat|categor(?:y|ies|ia)|kategorie|pag(?:e|es|ing|inated)?|rubrique|seite|tags?|topics?|user)(/|$)`)

	// pageParamRe matches pagination expressed through the query string.
	pageParamRe = regexp.MustCompile(`(?i)[?&]p(?:age|agenum)?=\d+`)

	// authPathRe matches paths behind authentication or account flows.
	authPathRe = regexp.MustCompile(`(?i)/(log[-_]?in|log[-_]?out|sign[-_]?in|sign[-_]?up|register|password|account|cart|checkout|admin)(/|$|\.)`)

	// langPathRe matches a leading two-letter language segment like /de/.
	langPathRe = regexp.MustCompile(`^/([a-z]{2})/`)
)

// assetExtensions are file types that never contain crawlable content.
var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".ico": {}, ".webp": {}, ".avif": {}, ".mp3": {}, ".mp4": {},
	".avi": {}, ".ogg": {}, ".webm": {}, ".zip": {}, ".tar": {}, ".gz": {},
	".rar": {}, ".exe": {}, ".dmg": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".eot": {},
}

// IsNavigationPage reports whether a URL points to a navigation page
// (archives, categories, pagination) rather than content. Crawls that want
// breadth keep them; focused crawls skip them.
func IsNavigationPage(rawURL string) bool {
	return navigationRe.MatchString(rawURL) || pageParamRe.MatchString(rawURL)
}

// IsNotCrawlable reports whether a URL is structurally unsuitable as a crawl
// target: non-HTTP schemes, embedded credentials, authentication flows and
// binary assets.
func IsNotCrawlable(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return true
	}
	if parsed.User != nil {
		return true
	}
	if authPathRe.MatchString(parsed.Path) {
		return true
	}

	if dot := strings.LastIndexByte(parsed.Path, '.'); dot >= 0 {
		ext := strings.ToLower(parsed.Path[dot:])
		if _, asset := assetExtensions[ext]; asset {
			return true
		}
	}

	return false
}

// MatchesLanguage reports whether a URL is compatible with the target
// language. It inspects the lang/language query parameters and a leading
// two-letter path segment. URLs carrying no language signal are accepted.
// An empty target accepts everything.
func MatchesLanguage(rawURL, target string) bool {
	if target == "" {
		return true
	}
	target = strings.ToLower(primarySubtag(target))

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	for key, vals := range parsed.Query() {
		if _, control := controlParams[strings.ToLower(key)]; !control {
			continue
		}
		for _, val := range vals {
			if val == "" {
				continue
			}
			return strings.ToLower(primarySubtag(val)) == target
		}
	}

	if m := langPathRe.FindStringSubmatch(parsed.Path); m != nil {
		return m[1] == target
	}

	return true
}

// primarySubtag reduces a language tag like "de-AT" or "en_US" to its
// primary subtag.
func primarySubtag(tag string) string {
	if idx := strings.IndexAny(tag, "-_"); idx > 0 {
		return tag[:idx]
	}
	return tag
}
