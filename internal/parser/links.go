// Package parser extracts crawlable links from HTML documents so they can
// be fed into the frontier store.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link is one anchor extracted from a document, resolved to absolute form.
type Link struct {
	URL        string
	AnchorText string
	Rel        string
}

// Document is the link-bearing view of a parsed HTML page.
type Document struct {
	// BaseURL is the effective resolution base: the page URL, overridden
	// by the document's first base element if present.
	BaseURL string

	// MetaRobots carries the content of a robots meta tag, empty if none.
	// Callers decide whether a nofollow directive suppresses the links.
	MetaRobots string

	Links []Link
}

// ParseDocument parses HTML fetched from pageURL and extracts all anchors
// resolved against the effective base. Anchors that cannot lead to an http
// or https page are dropped.
func ParseDocument(htmlContent []byte, pageURL string) (*Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	if href, ok := findBase(root); ok {
		if resolved, err := resolveAgainst(base, href); err == nil {
			base = resolved
		}
	}

	doc := &Document{BaseURL: base.String(), Links: []Link{}}
	collect(root, base, doc)
	return doc, nil
}

// findBase returns the href of the first base element, which by the HTML
// spec governs resolution for the whole document.
func findBase(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "base" {
		for _, attr := range n.Attr {
			if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
				return attr.Val, true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href, ok := findBase(c); ok {
			return href, true
		}
	}
	return "", false
}

// collect recursively walks the HTML tree
func collect(n *html.Node, base *url.URL, doc *Document) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "meta":
			parseMeta(n, doc)

		case "a":
			if link, ok := parseAnchor(n, base); ok {
				doc.Links = append(doc.Links, link)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, base, doc)
	}
}

// parseMeta picks up the robots directive from meta tags
func parseMeta(n *html.Node, doc *Document) {
	var name, content string

	for _, attr := range n.Attr {
		switch attr.Key {
		case "name":
			name = strings.ToLower(attr.Val)
		case "content":
			content = attr.Val
		}
	}

	if name == "robots" {
		doc.MetaRobots = content
	}
}

// parseAnchor extracts one link from an anchor tag
func parseAnchor(n *html.Node, base *url.URL) (Link, bool) {
	var href, rel string

	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "rel":
			rel = attr.Val
		}
	}

	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}

	// Early scheme check before paying for URL resolution
	if !crawlableScheme(href) {
		return Link{}, false
	}

	resolved, err := resolveAgainst(base, href)
	if err != nil {
		return Link{}, false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return Link{}, false
	}

	return Link{
		URL:        resolved.String(),
		AnchorText: extractText(n),
		Rel:        rel,
	}, true
}

// crawlableScheme rejects hrefs whose scheme can never yield a fetchable
// page (mailto, javascript, tel and friends). Relative paths may legally
// contain colons, so a candidate scheme with a slash in it is not a scheme.
func crawlableScheme(href string) bool {
	i := strings.Index(href, ":")
	if i < 0 {
		return true
	}
	candidate := href[:i]
	if strings.ContainsAny(candidate, "/?#") {
		return true
	}
	scheme := strings.ToLower(candidate)
	return scheme == "http" || scheme == "https"
}

// resolveAgainst converts a possibly relative href to an absolute URL
func resolveAgainst(base *url.URL, href string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(u), nil
}

// extractText recursively extracts text content from a node
func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}

	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := extractText(c); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}
