package frontier

import (
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/temoto/robotstxt"
)

// domainState tracks where a domain sits in its scheduling lifecycle.
type domainState int

const (
	// stateUnseen marks a domain created without URLs, typically because
	// rules arrived before any entries.
	stateUnseen domainState = iota
	// stateHasUnvisited marks a domain with at least one URL waiting.
	stateHasUnvisited
	// stateExhausted marks a domain whose every known URL was visited.
	stateExhausted
	// stateBusted marks a discarded domain: adds are ignored and the
	// domain never schedules. Only a reset clears it.
	stateBusted
)

// domainEntry is the per-domain bookkeeping: the URL ledger, scheduling
// state, politeness delay and robots rules. The entry mutex guards all
// fields; cross-domain operations lock one entry at a time.
type domainEntry struct {
	mu     sync.Mutex
	domain string
	ledger *ledger
	state  domainState

	delay       time.Duration // announced by rules, 0 means the default applies
	rulesBlob   []byte        // raw robots.txt body, codec-encoded when compression is on
	rules       *robotstxt.RobotsData
	rulesParsed bool

	firstSeen  time.Time
	lastAccess time.Time // zero until the first pop or granted schedule slot
}

// refreshState recomputes the scheduling state after a ledger mutation.
// Busted is terminal.
func (e *domainEntry) refreshState() {
	if e.state == stateBusted {
		return
	}
	switch {
	case e.ledger.total == 0:
		e.state = stateUnseen
	case e.ledger.exhausted():
		e.state = stateExhausted
	default:
		e.state = stateHasUnvisited
	}
}

// nextEligible returns the earliest instant the domain may be fetched from.
// Never-accessed domains are eligible immediately.
func (e *domainEntry) nextEligible(delay time.Duration) time.Time {
	if e.lastAccess.IsZero() {
		return time.Time{}
	}
	return e.lastAccess.Add(delay)
}

// waitUntil returns the remaining wait before the domain is eligible,
// clamped at zero.
func (e *domainEntry) waitUntil(now time.Time, delay time.Duration) time.Duration {
	next := e.nextEligible(delay)
	if next.IsZero() || !next.After(now) {
		return 0
	}
	return next.Sub(now)
}

// domainView pairs a domain key with its entry for iteration. Callers lock
// the entry before touching it.
type domainView struct {
	domain string
	entry  *domainEntry
}

// registry is the aggregate domain store: a map of domain keys to entries
// plus a bloom filter acting as a negative membership cache over full URLs.
type registry struct {
	mu      sync.RWMutex
	domains map[string]*domainEntry
	seen    *seenFilter

	codec    codec
	capacity uint
	fpRate   float64
}

func newRegistry(c codec, capacity uint, fpRate float64) *registry {
	return &registry{
		domains:  make(map[string]*domainEntry),
		seen:     newSeenFilter(capacity, fpRate),
		codec:    c,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// ensure returns the entry for domain, creating an empty one if absent.
func (r *registry) ensure(domain string, now time.Time) *domainEntry {
	r.mu.RLock()
	entry, ok := r.domains[domain]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again in case another goroutine created it.
	if entry, ok := r.domains[domain]; ok {
		return entry
	}
	entry = &domainEntry{
		domain:    domain,
		ledger:    newLedger(r.codec),
		firstSeen: now,
	}
	r.domains[domain] = entry
	return entry
}

// get returns the entry for domain if one exists.
func (r *registry) get(domain string) (*domainEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.domains[domain]
	return entry, ok
}

// list returns all domain keys in lexicographic order.
func (r *registry) list() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.domains))
	for domain := range r.domains {
		out = append(out, domain)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// view returns domain and entry pairs sorted by domain key. The slice stays
// valid while the registry mutates; entries are shared, not copied.
func (r *registry) view() []domainView {
	r.mu.RLock()
	out := make([]domainView, 0, len(r.domains))
	for domain, entry := range r.domains {
		out = append(out, domainView{domain: domain, entry: entry})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].domain < out[j].domain })
	return out
}

// size returns the number of known domains.
func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.domains)
}

// markSeen records a full URL key in the membership filter.
func (r *registry) markSeen(key string) {
	r.mu.RLock()
	seen := r.seen
	r.mu.RUnlock()
	seen.add(key)
}

// maybeSeen reports whether a URL key may have been recorded. A negative
// answer is exact; positives must be confirmed against the ledger.
func (r *registry) maybeSeen(key string) bool {
	r.mu.RLock()
	seen := r.seen
	r.mu.RUnlock()
	return seen.mightContain(key)
}

// install atomically replaces the domain map and the seen filter.
func (r *registry) install(domains map[string]*domainEntry, seen *seenFilter) {
	r.mu.Lock()
	r.domains = domains
	r.seen = seen
	r.mu.Unlock()
}

// reset discards all domains and membership state.
func (r *registry) reset() {
	r.install(make(map[string]*domainEntry), newSeenFilter(r.capacity, r.fpRate))
}

// seenFilter wraps a bloom filter with a mutex; the underlying filter is not
// safe for concurrent use.
type seenFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newSeenFilter(capacity uint, fpRate float64) *seenFilter {
	return &seenFilter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

func (f *seenFilter) add(key string) {
	f.mu.Lock()
	f.filter.AddString(key)
	f.mu.Unlock()
}

func (f *seenFilter) mightContain(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter.TestString(key)
}
