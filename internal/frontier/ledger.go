package frontier

import (
	"bytes"
	"encoding/gob"
	"log/slog"
	"time"
)

// urlEntry is one known URL path of a domain. Fields are exported so the
// compressed representation can gob-encode them.
type urlEntry struct {
	Path      string
	Visited   bool
	VisitedAt time.Time
}

// ledger owns the ordered URL entries of a single domain. Entries keep
// insertion order; the unvisited queue is the subsequence whose visited flag
// is unset. A ledger is not safe for concurrent use on its own: callers hold
// the owning domain's lock.
//
// Two storage modes share the same semantics. In plain mode entries live in
// a slice with a path index for constant-time membership. In compressed mode
// the encoded entry list is the only resident copy; operations decode it,
// work on the decoded values and re-encode after mutation.
type ledger struct {
	codec codec

	// plain mode
	entries []*urlEntry
	byPath  map[string]*urlEntry
	scan    int // entries before this index are all visited

	// compressed mode
	packed []byte

	total   int
	visited int
}

func newLedger(c codec) *ledger {
	l := &ledger{codec: c}
	if c == nil {
		l.byPath = make(map[string]*urlEntry)
	}
	return l
}

// add merges a batch of entries into the ledger. Unknown paths are inserted
// in batch order, at the tail or at the head when prepend is set; known
// paths are no-ops unless the incoming entry flips the visited flag from
// false to true. Returns the number of newly inserted entries.
func (l *ledger) add(batch []*urlEntry, prepend bool) int {
	entries := l.load()

	index := l.byPath
	if index == nil {
		index = make(map[string]*urlEntry, len(entries))
		for _, e := range entries {
			index[e.Path] = e
		}
	}

	var fresh []*urlEntry
	flipped := 0
	for _, in := range batch {
		if cur, known := index[in.Path]; known {
			if in.Visited && !cur.Visited {
				cur.Visited = true
				cur.VisitedAt = in.VisitedAt
				l.visited++
				flipped++
			}
			continue
		}
		index[in.Path] = in
		fresh = append(fresh, in)
		if in.Visited {
			l.visited++
		}
	}

	if len(fresh) > 0 {
		if prepend {
			entries = append(fresh, entries...)
			l.scan = 0
		} else {
			entries = append(entries, fresh...)
		}
		l.total += len(fresh)
	}
	if len(fresh) > 0 || flipped > 0 {
		l.flush(entries)
	}
	return len(fresh)
}

// markVisited flags a path as visited, keeping the original timestamp if it
// already was. Returns whether the path is known at all.
func (l *ledger) markVisited(path string, t time.Time) bool {
	if l.byPath != nil {
		e, ok := l.byPath[path]
		if !ok {
			return false
		}
		if !e.Visited {
			e.Visited = true
			e.VisitedAt = t
			l.visited++
		}
		return true
	}

	entries := l.load()
	for _, e := range entries {
		if e.Path != path {
			continue
		}
		if !e.Visited {
			e.Visited = true
			e.VisitedAt = t
			l.visited++
			l.flush(entries)
		}
		return true
	}
	return false
}

// popNext removes the head of the unvisited queue by marking it visited and
// returns its path. The caller holds the domain lock, so a given path is
// handed out at most once.
func (l *ledger) popNext(t time.Time) (string, bool) {
	if l.byPath != nil {
		for i := l.scan; i < len(l.entries); i++ {
			e := l.entries[i]
			if e.Visited {
				continue
			}
			e.Visited = true
			e.VisitedAt = t
			l.visited++
			l.scan = i + 1
			return e.Path, true
		}
		l.scan = len(l.entries)
		return "", false
	}

	entries := l.load()
	for _, e := range entries {
		if e.Visited {
			continue
		}
		e.Visited = true
		e.VisitedAt = t
		l.visited++
		l.flush(entries)
		return e.Path, true
	}
	return "", false
}

func (l *ledger) isKnown(path string) bool {
	if l.byPath != nil {
		_, ok := l.byPath[path]
		return ok
	}
	for _, e := range l.load() {
		if e.Path == path {
			return true
		}
	}
	return false
}

// hasBeenVisited reports the visited flag and whether the path is known.
func (l *ledger) hasBeenVisited(path string) (visited, known bool) {
	if l.byPath != nil {
		e, ok := l.byPath[path]
		if !ok {
			return false, false
		}
		return e.Visited, true
	}
	for _, e := range l.load() {
		if e.Path == path {
			return e.Visited, true
		}
	}
	return false, false
}

// states returns a path to visited-flag map for bulk membership tests,
// paying a single decode in compressed mode.
func (l *ledger) states() map[string]bool {
	entries := l.load()
	m := make(map[string]bool, len(entries))
	for _, e := range entries {
		m[e.Path] = e.Visited
	}
	return m
}

// known returns all paths in insertion order.
func (l *ledger) known() []string {
	entries := l.load()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// unvisited returns the unvisited paths in FIFO order.
func (l *ledger) unvisited() []string {
	var out []string
	for _, e := range l.load() {
		if !e.Visited {
			out = append(out, e.Path)
		}
	}
	return out
}

// exhausted reports whether the unvisited queue is empty.
func (l *ledger) exhausted() bool {
	return l.visited >= l.total
}

// records copies all entries in storage order.
func (l *ledger) records() []URLRecord {
	entries := l.load()
	out := make([]URLRecord, len(entries))
	for i, e := range entries {
		out[i] = URLRecord{Path: e.Path, Visited: e.Visited, VisitedAt: e.VisitedAt}
	}
	return out
}

// load returns the decoded entry list. In plain mode this is the resident
// slice itself, not a copy.
func (l *ledger) load() []*urlEntry {
	if l.codec == nil || l.packed == nil {
		return l.entries
	}
	raw, err := l.codec.decode(l.packed)
	if err != nil {
		slog.Error("decoding url entries", "error", err)
		return l.entries
	}
	var entries []*urlEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		slog.Error("unpacking url entries", "error", err)
		return l.entries
	}
	return entries
}

// flush stores the entry list back. If the codec fails, the decoded entries
// stay resident so no data is lost.
func (l *ledger) flush(entries []*urlEntry) {
	if l.codec == nil {
		l.entries = entries
		return
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		slog.Error("packing url entries", "error", err)
		l.entries, l.packed = entries, nil
		return
	}
	packed, err := l.codec.encode(buf.Bytes())
	if err != nil {
		slog.Error("encoding url entries", "error", err)
		l.entries, l.packed = entries, nil
		return
	}
	l.entries = nil
	l.packed = packed
}
