// Package sample draws per-domain URL samples from a frontier store, useful
// for eyeballing a crawl's coverage or building evaluation sets.
package sample

import (
	"log/slog"
	"math/rand"
	"sort"

	"github.com/tidewalk/crawlspace/internal/frontier"
	"github.com/tidewalk/crawlspace/internal/urlutil"
)

// Options bounds which domains and URLs participate in a sample.
type Options struct {
	// Filter keeps only URLs containing this substring. The size gates
	// below see the filtered counts. Empty keeps everything.
	Filter string

	// ExcludeMin skips domains holding fewer URLs. Zero disables the floor.
	ExcludeMin int

	// ExcludeMax skips domains holding more URLs. Zero disables the
	// ceiling. Oversized domains are usually aggregators that would
	// dominate the sample.
	ExcludeMax int

	// Unvisited draws from the unvisited queue instead of all known URLs.
	Unvisited bool

	// Rand is the source for the draw; nil uses a fresh pseudo-random one.
	// Seeding it makes the sample reproducible.
	Rand *rand.Rand
}

// URLs draws up to perDomain URLs from every eligible domain. Bare site
// roots are never part of a sample. Domains come out in lexicographic order
// with their picks sorted, so a seeded Rand yields identical output.
func URLs(store *frontier.Store, perDomain int, opts Options) []string {
	if perDomain <= 0 {
		return nil
	}
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewSource(rand.Int63()))
	}

	var out []string
	for _, domain := range store.KnownDomains() {
		urls, err := domainURLs(store, domain, opts.Unvisited)
		if err != nil {
			slog.Debug("sample skipping domain", "domain", domain, "error", err)
			continue
		}
		candidates := withoutRoot(domain, urls)
		if opts.Filter != "" {
			candidates = urlutil.FilterURLs(candidates, opts.Filter)
		}
		if len(candidates) == 0 {
			continue
		}
		if opts.ExcludeMin > 0 && len(candidates) < opts.ExcludeMin {
			slog.Debug("sample skipping small domain", "domain", domain, "urls", len(candidates))
			continue
		}
		if opts.ExcludeMax > 0 && len(candidates) > opts.ExcludeMax {
			slog.Debug("sample skipping large domain", "domain", domain, "urls", len(candidates))
			continue
		}

		if len(candidates) > perDomain {
			r.Shuffle(len(candidates), func(i, j int) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			})
			candidates = candidates[:perDomain]
		}
		sort.Strings(candidates)
		out = append(out, candidates...)
	}
	return out
}

func domainURLs(store *frontier.Store, domain string, unvisited bool) ([]string, error) {
	if unvisited {
		return store.FindUnvisitedURLs(domain)
	}
	return store.FindKnownURLs(domain)
}

func withoutRoot(domain string, urls []string) []string {
	var out []string
	for _, u := range urls {
		if u == domain+"/" {
			continue
		}
		out = append(out, u)
	}
	return out
}
