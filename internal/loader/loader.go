// Package loader feeds the frontier store: it canonicalizes and filters raw
// URL input from argument lists, files, readers and HTML documents before
// handing the survivors to the store facade. The store itself never rewrites
// URLs; everything that changes a URL happens here.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tidewalk/crawlspace/internal/frontier"
	"github.com/tidewalk/crawlspace/internal/parser"
	"github.com/tidewalk/crawlspace/internal/urlutil"
)

// insertBatchSize bounds how many lines a streaming load accumulates before
// handing them to the store.
const insertBatchSize = 1024

// Options controls which raw inputs survive loading.
type Options struct {
	// Strict enforces the canonicalization query-parameter allowlist.
	Strict bool

	// Language drops URLs whose language signal contradicts this tag.
	// Empty accepts everything.
	Language string

	// Blacklist rejects URLs by registrable domain. Nil disables the
	// check; urlutil.DefaultBlacklist is a reasonable value.
	Blacklist map[string]struct{}

	// KeepNavigation keeps archive, category and pagination pages, which
	// are dropped by default to bias the frontier toward content.
	KeepNavigation bool

	// AllowExternal keeps links leading off the source page's site when
	// loading from HTML. By default only same-site links are added.
	AllowExternal bool
}

// Loader prepares raw input for one store.
type Loader struct {
	store *frontier.Store
	opts  Options
}

// New creates a loader feeding the given store.
func New(store *frontier.Store, opts Options) *Loader {
	return &Loader{store: store, opts: opts}
}

// AddURLs canonicalizes, filters and adds raw URLs. Returns the number of
// entries the store accepted.
func (l *Loader) AddURLs(raw []string) int {
	return l.store.AddURLs(l.Prepare(raw))
}

// Prepare canonicalizes and filters raw URLs without adding them, preserving
// input order. Rejected URLs are logged at debug level.
func (l *Loader) Prepare(raw []string) []string {
	var out []string
	for _, r := range raw {
		canonical, ok := l.prepareOne(r)
		if ok {
			out = append(out, canonical)
		}
	}
	return out
}

func (l *Loader) prepareOne(raw string) (string, bool) {
	if urlutil.IsNotCrawlable(raw) {
		slog.Debug("dropping uncrawlable url", "url", raw)
		return "", false
	}
	canonical, _, err := urlutil.Canonicalize(raw, urlutil.Options{
		Strict:    l.opts.Strict,
		Blacklist: l.opts.Blacklist,
	})
	if err != nil {
		slog.Debug("dropping url", "url", raw, "error", err)
		return "", false
	}
	if !l.opts.KeepNavigation && urlutil.IsNavigationPage(canonical) {
		slog.Debug("dropping navigation url", "url", canonical)
		return "", false
	}
	if !urlutil.MatchesLanguage(canonical, l.opts.Language) {
		slog.Debug("dropping url for language", "url", canonical, "language", l.opts.Language)
		return "", false
	}
	return canonical, true
}

// LoadReader reads one URL per line, skipping blank lines and # comments,
// and adds the survivors in batches. Returns the number of inserted entries.
func (l *Loader) LoadReader(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	added := 0
	var batch []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		batch = append(batch, line)
		if len(batch) >= insertBatchSize {
			added += l.AddURLs(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("reading url list: %w", err)
	}
	added += l.AddURLs(batch)
	return added, nil
}

// LoadFile reads a URL list file and adds its entries.
func (l *Loader) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening url list: %w", err)
	}
	defer f.Close()

	added, err := l.LoadReader(f)
	if err != nil {
		return added, fmt.Errorf("%s: %w", path, err)
	}
	return added, nil
}

// AddFromHTML extracts the anchors of an HTML document fetched from pageURL,
// resolves them against the document's effective base and adds the
// survivors. Links leading off the page's site are dropped unless
// AllowExternal is set; rel=nofollow anchors and pages whose robots meta
// forbids following are skipped entirely.
func (l *Loader) AddFromHTML(htmlContent []byte, pageURL string) (int, error) {
	doc, err := parser.ParseDocument(htmlContent, pageURL)
	if err != nil {
		return 0, err
	}
	if forbidsFollowing(doc.MetaRobots) {
		slog.Debug("skipping nofollow page", "url", pageURL)
		return 0, nil
	}

	raw := make([]string, 0, len(doc.Links))
	for _, link := range doc.Links {
		if strings.Contains(strings.ToLower(link.Rel), "nofollow") {
			continue
		}
		if !l.opts.AllowExternal && urlutil.IsExternal(link.URL, pageURL, false) {
			continue
		}
		raw = append(raw, link.URL)
	}
	return l.AddURLs(raw), nil
}

// forbidsFollowing reports whether a robots meta content disables link
// following for the whole page.
func forbidsFollowing(meta string) bool {
	for _, field := range strings.Split(meta, ",") {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "nofollow", "none":
			return true
		}
	}
	return false
}
