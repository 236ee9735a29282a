package frontier

import "errors"

// Sentinel errors for store operations. Lookup misses are not errors; they
// are reported through zero values and ok booleans.
var (
	// ErrEmptyDomain is returned when an operation receives an empty domain
	// key. This is the only structurally invalid input the store rejects.
	ErrEmptyDomain = errors.New("empty domain key")

	// ErrBustedDomain is returned when rules are stored for a domain that
	// has been discarded.
	ErrBustedDomain = errors.New("domain has been discarded")

	// ErrNilSnapshot is returned when restoring from a nil snapshot.
	ErrNilSnapshot = errors.New("nil snapshot")
)
