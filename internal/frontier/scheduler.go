package frontier

import (
	"container/heap"
	"sort"
	"time"
)

// DownloadableNow returns the domains holding unvisited URLs whose next
// eligible fetch falls within the lookahead budget, each annotated with its
// remaining wait. Results are ordered by wait, then by domain key.
func (s *Store) DownloadableNow(timeLimit time.Duration) []DomainWait {
	now := s.now()
	var out []DomainWait
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		pending := v.entry.state == stateHasUnvisited
		var wait time.Duration
		if pending {
			wait = v.entry.waitUntil(now, s.entryDelayLocked(v.entry))
		}
		v.entry.mu.Unlock()
		if pending && wait <= timeLimit {
			out = append(out, DomainWait{Domain: v.domain, Wait: wait})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wait != out[j].Wait {
			return out[i].Wait < out[j].Wait
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// DownloadURLs pops one URL from each domain downloadable within the
// lookahead budget, nearest first, up to maxURLs. Each pop advances the
// domain's last access to its granted slot, so a later call keeps waiting
// out the politeness delay.
func (s *Store) DownloadURLs(maxURLs int, timeLimit time.Duration) []string {
	if maxURLs <= 0 {
		return nil
	}
	now := s.now()

	var out []string
	for _, dw := range s.DownloadableNow(timeLimit) {
		if len(out) >= maxURLs {
			break
		}
		entry, ok := s.reg.get(dw.Domain)
		if !ok {
			continue
		}
		slot := now.Add(dw.Wait)

		entry.mu.Lock()
		path, popped := entry.ledger.popNext(slot)
		if popped {
			if entry.lastAccess.Before(slot) {
				entry.lastAccess = slot
			}
			entry.refreshState()
		}
		entry.mu.Unlock()

		if popped {
			out = append(out, dw.Domain+path)
		}
	}
	return out
}

// planCandidate tracks one domain's position within a planning pass.
type planCandidate struct {
	domain   string
	entry    *domainEntry
	eligible time.Time // virtual next fetch slot
	delay    time.Duration
	taken    int // entries granted in this pass
}

// planQueue is a min-heap over candidates: earliest slot first, fewer
// grants in this pass next, then domain key. The ordering makes plans
// deterministic and spreads slots across domains on ties.
type planQueue []*planCandidate

func (q planQueue) Len() int { return len(q) }

func (q planQueue) Less(i, j int) bool {
	if !q[i].eligible.Equal(q[j].eligible) {
		return q[i].eligible.Before(q[j].eligible)
	}
	if q[i].taken != q[j].taken {
		return q[i].taken < q[j].taken
	}
	return q[i].domain < q[j].domain
}

func (q planQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *planQueue) Push(x any) { *q = append(*q, x.(*planCandidate)) }

func (q *planQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// DownloadSchedule builds a feasible download plan of up to maxURLs entries
// across all domains, each with the wait after which fetching it respects
// its domain's politeness delay. Slots are granted greedily to the domain
// with the earliest next slot; every grant advances that domain's slot by
// its delay. The pass ends when no domain has a slot within timeLimit.
// Planned URLs are marked visited at their slot time and each planned
// domain's last access moves to its final slot, so consecutive plans stay
// feasible.
func (s *Store) DownloadSchedule(maxURLs int, timeLimit time.Duration) []ScheduleEntry {
	if maxURLs <= 0 {
		return nil
	}
	now := s.now()

	queue := make(planQueue, 0)
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		pending := v.entry.state == stateHasUnvisited
		var delay time.Duration
		var eligible time.Time
		if pending {
			delay = s.entryDelayLocked(v.entry)
			eligible = now.Add(v.entry.waitUntil(now, delay))
		}
		v.entry.mu.Unlock()
		if !pending || eligible.Sub(now) > timeLimit {
			continue
		}
		queue = append(queue, &planCandidate{
			domain:   v.domain,
			entry:    v.entry,
			eligible: eligible,
			delay:    delay,
		})
	}
	heap.Init(&queue)

	var plan []ScheduleEntry
	for len(plan) < maxURLs && queue.Len() > 0 {
		c := heap.Pop(&queue).(*planCandidate)
		wait := c.eligible.Sub(now)
		if wait > timeLimit {
			break
		}

		c.entry.mu.Lock()
		path, popped := c.entry.ledger.popNext(c.eligible)
		if !popped {
			c.entry.mu.Unlock()
			continue
		}
		if c.entry.lastAccess.Before(c.eligible) {
			c.entry.lastAccess = c.eligible
		}
		c.entry.refreshState()
		remaining := c.entry.state == stateHasUnvisited
		c.entry.mu.Unlock()

		plan = append(plan, ScheduleEntry{Domain: c.domain, Path: path, Wait: wait})
		c.taken++
		c.eligible = c.eligible.Add(c.delay)
		if remaining && c.eligible.Sub(now) <= timeLimit {
			heap.Push(&queue, c)
		}
	}
	return plan
}

// UnvisitedDomainCount returns the number of domains still holding
// unvisited URLs.
func (s *Store) UnvisitedDomainCount() int {
	count := 0
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		if v.entry.state == stateHasUnvisited {
			count++
		}
		v.entry.mu.Unlock()
	}
	return count
}

// ThresholdReached reports whether the domain has spent longer than
// threshold being fetchable without a fetch. Callers use it to decide when
// to give up on a stalled domain. Domains without unvisited URLs never
// reach the threshold.
func (s *Store) ThresholdReached(domain string, threshold time.Duration) bool {
	entry, ok := s.reg.get(domain)
	if !ok {
		return false
	}
	now := s.now()
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.incurredWaitLocked(entry, now) > threshold
}

// DownloadThresholdReached reports whether any domain has exceeded the
// cumulative wait threshold.
func (s *Store) DownloadThresholdReached(threshold time.Duration) bool {
	now := s.now()
	for _, v := range s.reg.view() {
		v.entry.mu.Lock()
		reached := s.incurredWaitLocked(v.entry, now) > threshold
		v.entry.mu.Unlock()
		if reached {
			return true
		}
	}
	return false
}

// incurredWaitLocked computes how long the domain has been fetchable
// without being fetched: time past its last eligibility for accessed
// domains, time since first sight for untouched ones. Caller holds the
// entry lock.
func (s *Store) incurredWaitLocked(e *domainEntry, now time.Time) time.Duration {
	if e.state != stateHasUnvisited {
		return 0
	}
	var since time.Time
	if e.lastAccess.IsZero() {
		since = e.firstSeen
	} else {
		since = e.lastAccess.Add(s.entryDelayLocked(e))
	}
	if since.IsZero() || since.After(now) {
		return 0
	}
	return now.Sub(since)
}
