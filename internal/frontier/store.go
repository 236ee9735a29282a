// Package frontier implements a crawl frontier store: a domain-indexed
// ledger of known and visited URLs with politeness-aware download
// scheduling. URLs are decomposed into a domain key (scheme and host) and a
// path; each domain keeps its entries in insertion order and hands out
// unvisited ones first-in first-out, at most once. All exported methods are
// safe for concurrent use and none of them blocks on time.
package frontier

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tidewalk/crawlspace/internal/urlutil"
)

// DefaultDelay is the politeness delay applied when neither the domain
// rules nor the configuration specify one.
const DefaultDelay = 5 * time.Second

// Membership filter sizing defaults: a million URLs at a one percent false
// positive rate.
const (
	defaultExpectedURLs      = 1 << 20
	defaultFalsePositiveRate = 0.01
)

// Config carries the construction-time options of a Store.
type Config struct {
	// Compressed keeps URL entries and rule blobs in compressed form,
	// trading CPU on access for a smaller resident set.
	Compressed bool

	// Language is an informational target-language tag recorded with the
	// store. Collaborators that filter input by language read it from
	// here; the core does not interpret it.
	Language string

	// Strict is recorded for collaborators that canonicalize URLs before
	// insertion. The core does not interpret it.
	Strict bool

	// Verbose marks the store for dump-on-interrupt handling by the host.
	Verbose bool

	// DefaultDelay overrides DefaultDelay for domains without an explicit
	// or rules-derived politeness delay.
	DefaultDelay time.Duration

	// ExpectedURLs and FalsePositiveRate size the membership filter.
	ExpectedURLs      uint
	FalsePositiveRate float64

	// SplitCache, when set, memoizes URL decomposition across operations.
	// The cache is owned by the caller and may be shared.
	SplitCache *urlutil.Cache
}

// Store is the crawl frontier. The zero value is not usable; construct
// with New.
type Store struct {
	cfg Config
	reg *registry
	now func() time.Time
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}
	if cfg.ExpectedURLs == 0 {
		cfg.ExpectedURLs = defaultExpectedURLs
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = defaultFalsePositiveRate
	}

	var c codec
	if cfg.Compressed {
		c = newFlateCodec()
	}
	return &Store{
		cfg: cfg,
		reg: newRegistry(c, cfg.ExpectedURLs, cfg.FalsePositiveRate),
		now: time.Now,
	}
}

// Config returns the configuration the store was built with, after
// defaulting.
func (s *Store) Config() Config {
	return s.cfg
}

// split decomposes a URL into domain key and path, going through the
// configured parse cache when present.
func (s *Store) split(rawURL string) (string, string, error) {
	if s.cfg.SplitCache != nil {
		return s.cfg.SplitCache.Split(rawURL)
	}
	return urlutil.SplitDomainPath(rawURL)
}

// Add records a batch of URLs, grouped by domain, preserving input order
// within each domain. Re-added URLs are ignored, except that an incoming
// visited flag upgrades an unvisited entry. Malformed URLs are skipped and
// logged. Returns the number of entries actually inserted.
func (s *Store) Add(urls []string, opts AddOptions) int {
	now := s.now()

	type domainBatch struct {
		domain  string
		entries []*urlEntry
	}
	var batches []domainBatch
	position := make(map[string]int)

	for _, u := range urls {
		domain, path, err := s.split(u)
		if err != nil {
			slog.Debug("skipping malformed url", "url", u, "error", err)
			continue
		}
		entry := &urlEntry{Path: path, Visited: opts.Visited}
		if opts.Visited {
			entry.VisitedAt = now
		}
		idx, ok := position[domain]
		if !ok {
			idx = len(batches)
			position[domain] = idx
			batches = append(batches, domainBatch{domain: domain})
		}
		batches[idx].entries = append(batches[idx].entries, entry)
	}

	added := 0
	for _, b := range batches {
		entry := s.reg.ensure(b.domain, now)
		entry.mu.Lock()
		if entry.state == stateBusted {
			entry.mu.Unlock()
			slog.Debug("ignoring urls for busted domain", "domain", b.domain, "count", len(b.entries))
			continue
		}
		n := entry.ledger.add(b.entries, opts.Prepend)
		entry.refreshState()
		entry.mu.Unlock()

		if n > 0 {
			for _, e := range b.entries {
				s.reg.markSeen(b.domain + e.Path)
			}
			added += n
		}
	}
	return added
}

// AddURLs records URLs as unvisited entries at the tail of their domains'
// queues.
func (s *Store) AddURLs(urls []string) int {
	return s.Add(urls, AddOptions{})
}

// GetURL atomically removes the head of the domain's unvisited queue, marks
// it visited and returns its path. The second result is false when the
// domain is unknown, exhausted or busted. A successful pop stamps the
// domain's last access, so politeness waits count from the hand-out.
func (s *Store) GetURL(domain string) (string, bool) {
	entry, ok := s.reg.get(domain)
	if !ok {
		return "", false
	}
	now := s.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == stateBusted {
		return "", false
	}
	path, ok := entry.ledger.popNext(now)
	if !ok {
		return "", false
	}
	entry.lastAccess = now
	entry.refreshState()
	return path, true
}

// MarkVisited flags an already known URL as visited. Unknown URLs are
// ignored; the return value reports whether the URL was known.
func (s *Store) MarkVisited(rawURL string) bool {
	domain, path, err := s.split(rawURL)
	if err != nil {
		slog.Debug("skipping malformed url", "url", rawURL, "error", err)
		return false
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	known := entry.ledger.markVisited(path, s.now())
	entry.refreshState()
	return known
}

// IsKnown reports whether the URL has ever been recorded.
func (s *Store) IsKnown(rawURL string) bool {
	domain, path, err := s.split(rawURL)
	if err != nil {
		return false
	}
	if !s.reg.maybeSeen(domain + path) {
		return false
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ledger.isKnown(path)
}

// HasBeenVisited reports whether the URL is known and was visited.
func (s *Store) HasBeenVisited(rawURL string) bool {
	domain, path, err := s.split(rawURL)
	if err != nil {
		return false
	}
	if !s.reg.maybeSeen(domain + path) {
		return false
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	visited, _ := entry.ledger.hasBeenVisited(path)
	return visited
}

// IsExhausted reports whether every known URL of the domain has been
// visited. Unknown domains are not exhausted; busted ones are.
func (s *Store) IsExhausted(domain string) bool {
	entry, ok := s.reg.get(domain)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state == stateExhausted || entry.state == stateBusted
}

// FilterUnknownURLs returns the URLs not yet recorded, preserving input
// order and duplicates. Membership is answered by the filter where possible
// and confirmed against each domain's ledger otherwise, one ledger load per
// domain.
func (s *Store) FilterUnknownURLs(urls []string) []string {
	states := make(map[string]map[string]bool)
	var out []string
	for _, u := range urls {
		domain, path, err := s.split(u)
		if err != nil {
			slog.Debug("skipping malformed url", "url", u, "error", err)
			continue
		}
		if !s.reg.maybeSeen(domain + path) {
			out = append(out, u)
			continue
		}
		m, ok := states[domain]
		if !ok {
			m = s.domainStates(domain)
			states[domain] = m
		}
		if _, known := m[path]; !known {
			out = append(out, u)
		}
	}
	return out
}

// FilterUnvisitedURLs returns the URLs that are recorded but not yet
// visited, preserving input order.
func (s *Store) FilterUnvisitedURLs(urls []string) []string {
	states := make(map[string]map[string]bool)
	var out []string
	for _, u := range urls {
		domain, path, err := s.split(u)
		if err != nil {
			slog.Debug("skipping malformed url", "url", u, "error", err)
			continue
		}
		if !s.reg.maybeSeen(domain + path) {
			continue
		}
		m, ok := states[domain]
		if !ok {
			m = s.domainStates(domain)
			states[domain] = m
		}
		if visited, known := m[path]; known && !visited {
			out = append(out, u)
		}
	}
	return out
}

// domainStates loads one domain's path states, empty when the domain is
// unknown.
func (s *Store) domainStates(domain string) map[string]bool {
	entry, ok := s.reg.get(domain)
	if !ok {
		return map[string]bool{}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ledger.states()
}

// FindKnownURLs returns every URL recorded for the domain in insertion
// order, reassembled to absolute form.
func (s *Store) FindKnownURLs(domain string) ([]string, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return nil, nil
	}
	entry.mu.Lock()
	paths := entry.ledger.known()
	entry.mu.Unlock()
	return joinDomain(domain, paths), nil
}

// FindUnvisitedURLs returns the domain's unvisited URLs in FIFO order,
// reassembled to absolute form.
func (s *Store) FindUnvisitedURLs(domain string) ([]string, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return nil, nil
	}
	entry.mu.Lock()
	paths := entry.ledger.unvisited()
	entry.mu.Unlock()
	return joinDomain(domain, paths), nil
}

// KnownDomains returns all domain keys in lexicographic order.
func (s *Store) KnownDomains() []string {
	return s.reg.list()
}

// UnvisitedDomains returns the domains that still hold unvisited URLs, in
// lexicographic order.
func (s *Store) UnvisitedDomains() []string {
	var out []string
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		pending := v.entry.state == stateHasUnvisited
		v.entry.mu.Unlock()
		if pending {
			out = append(out, v.domain)
		}
	}
	return out
}

// AllCounts returns the per-domain visited counts, ordered to match
// KnownDomains.
func (s *Store) AllCounts() []int {
	views := s.reg.view()
	out := make([]int, len(views))
	for i, v := range views {
		v.entry.mu.Lock()
		out[i] = v.entry.ledger.visited
		v.entry.mu.Unlock()
	}
	return out
}

// TotalURLCount returns the number of URLs recorded across all domains.
func (s *Store) TotalURLCount() int {
	total := 0
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		total += v.entry.ledger.total
		v.entry.mu.Unlock()
	}
	return total
}

// DomainCount returns the number of known domains, busted ones included.
func (s *Store) DomainCount() int {
	return s.reg.size()
}

// Discard declares domains void: their entries and rules are dropped and
// later adds for them are ignored. Busting is terminal until Reset.
func (s *Store) Discard(domains []string) {
	now := s.now()
	for _, domain := range domains {
		if domain == "" {
			continue
		}
		entry := s.reg.ensure(domain, now)
		entry.mu.Lock()
		entry.ledger = newLedger(s.reg.codec)
		entry.rulesBlob = nil
		entry.rules = nil
		entry.rulesParsed = false
		entry.delay = 0
		entry.state = stateBusted
		entry.mu.Unlock()
	}
}

// Reset discards all state, returning the store to its just-constructed
// condition.
func (s *Store) Reset() {
	s.reg.reset()
}

// DumpURLs returns every recorded URL: domains in lexicographic order,
// entries in insertion order.
func (s *Store) DumpURLs() []string {
	var out []string
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		paths := v.entry.ledger.known()
		v.entry.mu.Unlock()
		out = append(out, joinDomain(v.domain, paths)...)
	}
	return out
}

// WriteURLs writes every recorded URL and its visited flag, tab separated,
// one per line, in DumpURLs order.
func (s *Store) WriteURLs(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		records := v.entry.ledger.records()
		v.entry.mu.Unlock()
		for _, rec := range records {
			if _, err := fmt.Fprintf(bw, "%s%s\t%t\n", v.domain, rec.Path, rec.Visited); err != nil {
				return fmt.Errorf("writing url dump: %w", err)
			}
		}
	}
	return bw.Flush()
}

// WriteUnvisitedURLs writes the unvisited URLs, one per line, in DumpURLs
// order.
func (s *Store) WriteUnvisitedURLs(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		paths := v.entry.ledger.unvisited()
		v.entry.mu.Unlock()
		for _, p := range paths {
			if _, err := fmt.Fprintf(bw, "%s%s\n", v.domain, p); err != nil {
				return fmt.Errorf("writing unvisited urls: %w", err)
			}
		}
	}
	return bw.Flush()
}

func joinDomain(domain string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = domain + p
	}
	return out
}
