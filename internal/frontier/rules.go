package frontier

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/temoto/robotstxt"
)

// SetRules stores a raw robots.txt body for the domain, replacing any
// previous one. The body is kept as an opaque blob, compressed when the
// store is, and parsed lazily on first use. An empty body clears the rules.
func (s *Store) SetRules(domain string, robotsTxt []byte) error {
	if domain == "" {
		return ErrEmptyDomain
	}
	entry := s.reg.ensure(domain, s.now())

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == stateBusted {
		return fmt.Errorf("storing rules for %s: %w", domain, ErrBustedDomain)
	}

	entry.rules = nil
	entry.rulesParsed = false
	entry.delay = 0
	if len(robotsTxt) == 0 {
		entry.rulesBlob = nil
		return nil
	}

	var blob []byte
	if s.reg.codec != nil {
		encoded, err := s.reg.codec.encode(robotsTxt)
		if err != nil {
			return fmt.Errorf("storing rules for %s: %w", domain, err)
		}
		blob = encoded
	} else {
		blob = make([]byte, len(robotsTxt))
		copy(blob, robotsTxt)
	}
	entry.rulesBlob = blob
	return nil
}

// Rules returns the parsed robots rules stored for the domain. The second
// result is false when the domain is unknown, has no rules, or its stored
// body does not parse.
func (s *Store) Rules(domain string) (*robotstxt.RobotsData, bool) {
	entry, ok := s.reg.get(domain)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	rules := s.parseRulesLocked(entry)
	return rules, rules != nil
}

// CrawlDelay returns the politeness delay for the domain: the crawl-delay
// its rules announce, else fallback, else the store default. A non-positive
// fallback selects the store default directly.
func (s *Store) CrawlDelay(domain string, fallback time.Duration) time.Duration {
	def := fallback
	if def <= 0 {
		def = s.cfg.DefaultDelay
	}
	entry, ok := s.reg.get(domain)
	if !ok {
		return def
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.parseRulesLocked(entry)
	if entry.delay > 0 {
		return entry.delay
	}
	return def
}

// parseRulesLocked decodes and parses the stored rules blob once, caching
// the parse result and the crawl delay it announces. A body that fails to
// decode or parse counts as absent. Caller holds the entry lock.
func (s *Store) parseRulesLocked(e *domainEntry) *robotstxt.RobotsData {
	if e.rulesParsed {
		return e.rules
	}
	e.rulesParsed = true
	if len(e.rulesBlob) == 0 {
		return nil
	}

	raw := e.rulesBlob
	if s.reg.codec != nil {
		decoded, err := s.reg.codec.decode(e.rulesBlob)
		if err != nil {
			slog.Error("decoding robots rules", "domain", e.domain, "error", err)
			return nil
		}
		raw = decoded
	}
	rules, err := robotstxt.FromBytes(raw)
	if err != nil {
		slog.Debug("unparseable robots rules", "domain", e.domain, "error", err)
		return nil
	}

	e.rules = rules
	if group := rules.FindGroup("*"); group != nil && group.CrawlDelay > 0 {
		e.delay = group.CrawlDelay
	}
	return rules
}

// entryDelayLocked returns the effective politeness delay for scheduling,
// parsing stored rules on first use. Caller holds the entry lock.
func (s *Store) entryDelayLocked(e *domainEntry) time.Duration {
	if !e.rulesParsed && len(e.rulesBlob) > 0 {
		s.parseRulesLocked(e)
	}
	if e.delay > 0 {
		return e.delay
	}
	return s.cfg.DefaultDelay
}
