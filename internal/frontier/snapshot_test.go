package frontier

import (
	"errors"
	"testing"
	"time"
)

func populatedStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := New(cfg)
	s.AddURLs([]string{
		"https://a.com/1", "https://a.com/2", "https://a.com/3",
		"https://b.com/x",
	})
	s.GetURL("https://a.com")
	if err := s.SetRules("https://a.com", []byte(sampleRobots)); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}
	s.Discard([]string{"https://dead.com"})
	return s
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	// Restoring across storage modes must preserve every observable
	// property, so try all four combinations.
	for _, from := range []bool{false, true} {
		for _, to := range []bool{false, true} {
			name := map[bool]string{false: "plain", true: "compressed"}
			t.Run(name[from]+"-to-"+name[to], func(t *testing.T) {
				src := populatedStore(t, Config{Compressed: from})
				snap := src.Snapshot()
				if snap.ID == "" {
					t.Error("snapshot has no ID")
				}

				dst := New(Config{Compressed: to})
				if err := dst.Restore(snap); err != nil {
					t.Fatalf("Restore failed: %v", err)
				}

				if got, want := dst.TotalURLCount(), src.TotalURLCount(); got != want {
					t.Errorf("TotalURLCount = %d, want %d", got, want)
				}
				if got, want := dst.DumpURLs(), src.DumpURLs(); len(got) != len(want) {
					t.Fatalf("DumpURLs = %v, want %v", got, want)
				} else {
					for i := range want {
						if got[i] != want[i] {
							t.Errorf("DumpURLs[%d] = %q, want %q", i, got[i], want[i])
						}
					}
				}

				if !dst.HasBeenVisited("https://a.com/1") {
					t.Error("visited flag lost in round trip")
				}
				if dst.HasBeenVisited("https://a.com/2") {
					t.Error("visited flag invented in round trip")
				}

				// FIFO position survives: /2 is still the head.
				got, ok := dst.GetURL("https://a.com")
				if !ok || got != "/2" {
					t.Errorf("GetURL after restore = %q, %t, want /2, true", got, ok)
				}

				// Rules survive.
				rules, ok := dst.Rules("https://a.com")
				if !ok || rules.TestAgent("/private/x", "bot") {
					t.Error("rules lost or changed in round trip")
				}

				// Busted domains stay busted.
				if added := dst.AddURLs([]string{"https://dead.com/1"}); added != 0 {
					t.Errorf("busted domain accepted %d URLs after restore", added)
				}
			})
		}
	}
}

func TestSnapshotPreservesLastAccess(t *testing.T) {
	src, _ := clockedStore(Config{DefaultDelay: 2 * time.Second})
	src.AddURLs([]string{"https://a.com/1", "https://a.com/2"})
	src.GetURL("https://a.com")

	dst, _ := clockedStore(Config{DefaultDelay: 2 * time.Second})
	if err := dst.Restore(src.Snapshot()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	got := dst.DownloadableNow(time.Hour)
	if len(got) != 1 || got[0].Wait != 2*time.Second {
		t.Errorf("DownloadableNow after restore = %v, want 2s wait", got)
	}
}

func TestSnapshotIsolatedFromSource(t *testing.T) {
	src := New(Config{})
	src.AddURLs([]string{"https://a.com/1"})
	snap := src.Snapshot()

	// Mutating the source after the snapshot must not leak into it.
	src.AddURLs([]string{"https://a.com/2"})
	src.GetURL("https://a.com")

	dst := New(Config{})
	if err := dst.Restore(snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := dst.TotalURLCount(); got != 1 {
		t.Errorf("TotalURLCount = %d, want 1", got)
	}
	if dst.HasBeenVisited("https://a.com/1") {
		t.Error("later source mutation visible through the snapshot")
	}
}

func TestSnapshotIDsDiffer(t *testing.T) {
	s := New(Config{})
	if a, b := s.Snapshot(), s.Snapshot(); a.ID == b.ID {
		t.Errorf("consecutive snapshots share ID %q", a.ID)
	}
}

func TestRestoreNilSnapshot(t *testing.T) {
	s := New(Config{})
	if err := s.Restore(nil); !errors.Is(err, ErrNilSnapshot) {
		t.Errorf("Restore(nil) error = %v, want ErrNilSnapshot", err)
	}
}

func TestRestoreRejectsBadSnapshotAtomically(t *testing.T) {
	s := New(Config{})
	s.AddURLs([]string{"https://keep.com/1"})

	bad := &Snapshot{
		ID: "bad",
		Domains: []DomainRecord{
			{Domain: "https://ok.com", URLs: []URLRecord{{Path: "/1"}}},
			{Domain: ""},
		},
	}
	if err := s.Restore(bad); !errors.Is(err, ErrEmptyDomain) {
		t.Fatalf("Restore error = %v, want ErrEmptyDomain", err)
	}

	// The failed restore must not have touched the store.
	if !s.IsKnown("https://keep.com/1") {
		t.Error("existing contents lost after failed restore")
	}
	if s.IsKnown("https://ok.com/1") {
		t.Error("partial snapshot contents applied after failed restore")
	}
}

func TestRestoreRejectsDuplicateDomains(t *testing.T) {
	s := New(Config{})
	bad := &Snapshot{
		ID: "dup",
		Domains: []DomainRecord{
			{Domain: "https://a.com"},
			{Domain: "https://a.com"},
		},
	}
	if err := s.Restore(bad); err == nil {
		t.Error("Restore accepted a snapshot with duplicate domains")
	}
}

func TestRestoreReplacesExistingState(t *testing.T) {
	s := New(Config{})
	s.AddURLs([]string{"https://old.com/1"})

	snap := &Snapshot{
		ID:      "fresh",
		TakenAt: time.Now(),
		Domains: []DomainRecord{
			{Domain: "https://new.com", URLs: []URLRecord{{Path: "/1"}}},
		},
	}
	if err := s.Restore(snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if s.IsKnown("https://old.com/1") {
		t.Error("pre-restore contents survived")
	}
	if !s.IsKnown("https://new.com/1") {
		t.Error("restored contents missing")
	}
}
