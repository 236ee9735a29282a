package frontier

import "time"

// AddOptions controls how a batch of URLs enters the store.
type AddOptions struct {
	Prepend bool // place new entries at the head of the unvisited queue
	Visited bool // record entries as already visited
}

// ScheduleEntry is one slot of a download plan: fetch Path from Domain
// after waiting Wait from the time the plan was built.
type ScheduleEntry struct {
	Domain string
	Path   string
	Wait   time.Duration
}

// URL returns the absolute URL of the entry.
func (e ScheduleEntry) URL() string {
	return e.Domain + e.Path
}

// DomainWait reports how long a caller has to wait before the domain may be
// fetched from. A zero Wait means the domain is downloadable immediately.
type DomainWait struct {
	Domain string
	Wait   time.Duration
}

// Snapshot is a consistent copy of the store contents, suitable for
// persistence and for rebuilding an equivalent store via Restore.
type Snapshot struct {
	ID      string
	TakenAt time.Time
	Domains []DomainRecord
}

// DomainRecord captures one domain with its bookkeeping and URL entries in
// storage order.
type DomainRecord struct {
	Domain     string
	Delay      time.Duration
	LastAccess time.Time
	FirstSeen  time.Time
	Busted     bool
	Rules      []byte
	URLs       []URLRecord
}

// URLRecord is a single URL path with its visit state.
type URLRecord struct {
	Path      string
	Visited   bool
	VisitedAt time.Time
}
