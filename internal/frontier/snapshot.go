package frontier

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Snapshot produces a copy of the store: every domain with its bookkeeping,
// rules and URL entries. Each domain is copied under its own lock, so the
// result is a valid state even while other operations are in flight. Hosts
// use it for periodic persistence and dump-on-interrupt.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:      uuid.New().String(),
		TakenAt: s.now(),
	}
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		rec := DomainRecord{
			Domain:     v.domain,
			Delay:      v.entry.delay,
			FirstSeen:  v.entry.firstSeen,
			LastAccess: v.entry.lastAccess,
			Busted:     v.entry.state == stateBusted,
			Rules:      s.rawRulesLocked(v.entry),
			URLs:       v.entry.ledger.records(),
		}
		v.entry.mu.Unlock()
		snap.Domains = append(snap.Domains, rec)
	}
	return snap
}

// rawRulesLocked returns the decoded robots body. Caller holds the entry
// lock.
func (s *Store) rawRulesLocked(e *domainEntry) []byte {
	if len(e.rulesBlob) == 0 {
		return nil
	}
	if s.reg.codec == nil {
		out := make([]byte, len(e.rulesBlob))
		copy(out, e.rulesBlob)
		return out
	}
	raw, err := s.reg.codec.decode(e.rulesBlob)
	if err != nil {
		slog.Error("decoding robots rules", "domain", e.domain, "error", err)
		return nil
	}
	return raw
}

// Restore replaces the store's contents with the snapshot's. The new state
// is built aside and swapped in atomically, so a failed restore leaves the
// store untouched and concurrent readers always see either the old or the
// new state.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	now := s.now()

	domains := make(map[string]*domainEntry, len(snap.Domains))
	seen := newSeenFilter(s.cfg.ExpectedURLs, s.cfg.FalsePositiveRate)

	for _, rec := range snap.Domains {
		if rec.Domain == "" {
			return fmt.Errorf("restoring snapshot %s: %w", snap.ID, ErrEmptyDomain)
		}
		if _, dup := domains[rec.Domain]; dup {
			return fmt.Errorf("restoring snapshot %s: duplicate domain %s", snap.ID, rec.Domain)
		}

		entry := &domainEntry{
			domain:     rec.Domain,
			ledger:     newLedger(s.reg.codec),
			delay:      rec.Delay,
			firstSeen:  rec.FirstSeen,
			lastAccess: rec.LastAccess,
		}
		if entry.firstSeen.IsZero() {
			entry.firstSeen = now
		}
		if rec.Busted {
			entry.state = stateBusted
			domains[rec.Domain] = entry
			continue
		}

		if len(rec.URLs) > 0 {
			batch := make([]*urlEntry, len(rec.URLs))
			for i, u := range rec.URLs {
				batch[i] = &urlEntry{Path: u.Path, Visited: u.Visited, VisitedAt: u.VisitedAt}
				seen.add(rec.Domain + u.Path)
			}
			entry.ledger.add(batch, false)
		}
		entry.refreshState()

		if len(rec.Rules) > 0 {
			blob := rec.Rules
			if s.reg.codec != nil {
				encoded, err := s.reg.codec.encode(rec.Rules)
				if err != nil {
					return fmt.Errorf("restoring snapshot %s: %w", snap.ID, err)
				}
				blob = encoded
			} else {
				blob = make([]byte, len(rec.Rules))
				copy(blob, rec.Rules)
			}
			entry.rulesBlob = blob
		}
		domains[rec.Domain] = entry
	}

	s.reg.install(domains, seen)
	return nil
}
