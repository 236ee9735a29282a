package urlutil

import "errors"

// Sentinel errors returned by URL decomposition and canonicalization.
var (
	// ErrIncompleteURL is returned when a URL lacks a scheme or host.
	ErrIncompleteURL = errors.New("incomplete URL: missing scheme or host")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrBlacklistedDomain is returned when the registrable domain is on the
	// platform blacklist.
	ErrBlacklistedDomain = errors.New("blacklisted domain")
)
