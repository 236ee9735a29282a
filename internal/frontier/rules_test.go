package frontier

import (
	"errors"
	"testing"
	"time"
)

const sampleRobots = `User-agent: *
Disallow: /private/
Crawl-delay: 3

User-agent: evilbot
Disallow: /
`

func TestSetRulesAndLookup(t *testing.T) {
	storeModes(t, func(t *testing.T, s *Store) {
		if err := s.SetRules("https://a.com", []byte(sampleRobots)); err != nil {
			t.Fatalf("SetRules failed: %v", err)
		}

		rules, ok := s.Rules("https://a.com")
		if !ok {
			t.Fatal("Rules returned no data for a domain with stored rules")
		}
		if rules.TestAgent("/private/x", "somebot") {
			t.Error("disallowed path was allowed")
		}
		if !rules.TestAgent("/public", "somebot") {
			t.Error("allowed path was disallowed")
		}
		if rules.TestAgent("/anything", "evilbot") {
			t.Error("blanket disallow for evilbot not honored")
		}
	})
}

func TestRulesUnknownDomain(t *testing.T) {
	s := New(Config{})
	if rules, ok := s.Rules("https://nowhere.example"); ok || rules != nil {
		t.Error("Rules invented data for an unknown domain")
	}
}

func TestSetRulesEmptyDomain(t *testing.T) {
	s := New(Config{})
	if err := s.SetRules("", []byte(sampleRobots)); !errors.Is(err, ErrEmptyDomain) {
		t.Errorf("SetRules(\"\") error = %v, want ErrEmptyDomain", err)
	}
}

func TestSetRulesClear(t *testing.T) {
	s := New(Config{})
	if err := s.SetRules("https://a.com", []byte(sampleRobots)); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}
	if err := s.SetRules("https://a.com", nil); err != nil {
		t.Fatalf("clearing rules failed: %v", err)
	}
	if _, ok := s.Rules("https://a.com"); ok {
		t.Error("rules survived a clearing SetRules")
	}
	if got := s.CrawlDelay("https://a.com", time.Second); got != time.Second {
		t.Errorf("CrawlDelay after clear = %v, want fallback 1s", got)
	}
}

func TestSetRulesReplace(t *testing.T) {
	s := New(Config{})
	s.SetRules("https://a.com", []byte(sampleRobots))
	s.CrawlDelay("https://a.com", 0) // force a parse of the first body

	replacement := []byte("User-agent: *\nCrawl-delay: 7\n")
	if err := s.SetRules("https://a.com", replacement); err != nil {
		t.Fatalf("replacing rules failed: %v", err)
	}
	if got := s.CrawlDelay("https://a.com", 0); got != 7*time.Second {
		t.Errorf("CrawlDelay after replace = %v, want 7s", got)
	}
}

func TestCrawlDelayPrecedence(t *testing.T) {
	storeModes(t, func(t *testing.T, s *Store) {
		s.SetRules("https://ruled.com", []byte(sampleRobots))
		s.AddURLs([]string{"https://bare.com/1"})

		// Rules win over the fallback.
		if got := s.CrawlDelay("https://ruled.com", time.Second); got != 3*time.Second {
			t.Errorf("CrawlDelay(ruled) = %v, want 3s from rules", got)
		}
		// No rules: the fallback wins.
		if got := s.CrawlDelay("https://bare.com", time.Second); got != time.Second {
			t.Errorf("CrawlDelay(bare) = %v, want fallback 1s", got)
		}
		// No rules, no fallback: the store default wins.
		if got := s.CrawlDelay("https://bare.com", 0); got != DefaultDelay {
			t.Errorf("CrawlDelay(bare, 0) = %v, want %v", got, DefaultDelay)
		}
		// Unknown domains still answer with the fallback chain.
		if got := s.CrawlDelay("https://nowhere.example", 2*time.Second); got != 2*time.Second {
			t.Errorf("CrawlDelay(unknown) = %v, want 2s", got)
		}
	})
}

func TestRulesWithoutDelayDirective(t *testing.T) {
	s := New(Config{})
	s.SetRules("https://a.com", []byte("User-agent: *\nDisallow: /hidden/\n"))

	if got := s.CrawlDelay("https://a.com", time.Second); got != time.Second {
		t.Errorf("CrawlDelay = %v, want fallback when rules announce no delay", got)
	}
}

func TestRulesDomainSchedulesWithoutURLs(t *testing.T) {
	// Storing rules creates the domain but must not make it schedulable.
	s := New(Config{})
	s.SetRules("https://a.com", []byte(sampleRobots))

	if got := s.DownloadableNow(time.Hour); len(got) != 0 {
		t.Errorf("DownloadableNow = %v, want empty for a rules-only domain", got)
	}
	if s.IsExhausted("https://a.com") {
		t.Error("rules-only domain reported exhausted")
	}
	if got := s.DomainCount(); got != 1 {
		t.Errorf("DomainCount = %d, want 1", got)
	}
}
