// Package storage persists frontier snapshots to SQLite so a crawl can be
// stopped and resumed across process runs.
package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/tidewalk/crawlspace/internal/frontier"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// SnapshotStore reads and writes frontier snapshots in a SQLite database.
// A database holds at most one snapshot; Save replaces it wholesale.
type SnapshotStore struct {
	db *sql.DB
}

// Open opens or creates the snapshot database at dbPath.
func Open(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SnapshotStore{db: db}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SnapshotStore) initSchema() error {
	// Enable foreign keys and WAL mode for better performance
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",  // 30 second timeout for locks
		"PRAGMA locking_mode = NORMAL", // Allow external monitoring processes
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Save writes snap to the database, replacing any previously stored
// snapshot. The write happens in a single transaction.
func (s *SnapshotStore) Save(snap *frontier.Snapshot) error {
	if snap == nil {
		return frontier.ErrNilSnapshot
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range []string{
		"DELETE FROM urls",
		"DELETE FROM domains",
		"DELETE FROM snapshot_meta",
	} {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to clear previous snapshot: %w", err)
		}
	}

	meta := [][2]string{
		{"id", snap.ID},
		{"taken_at_ns", strconv.FormatInt(encodeTime(snap.TakenAt), 10)},
	}
	for _, kv := range meta {
		if _, err := tx.Exec("INSERT INTO snapshot_meta (key, value) VALUES (?, ?)", kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to insert meta %s: %w", kv[0], err)
		}
	}

	domainStmt, err := tx.Prepare(`
		INSERT INTO domains (domain, delay_ns, first_seen_ns, last_access_ns, busted, rules)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = domainStmt.Close() }()

	urlStmt, err := tx.Prepare(`
		INSERT INTO urls (domain_id, position, path, visited, visited_at_ns)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = urlStmt.Close() }()

	for _, rec := range snap.Domains {
		result, err := domainStmt.Exec(
			rec.Domain,
			int64(rec.Delay),
			encodeTime(rec.FirstSeen),
			encodeTime(rec.LastAccess),
			rec.Busted,
			rec.Rules,
		)
		if err != nil {
			return fmt.Errorf("failed to insert domain %s: %w", rec.Domain, err)
		}
		domainID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get domain ID for %s: %w", rec.Domain, err)
		}

		for i, u := range rec.URLs {
			if _, err := urlStmt.Exec(domainID, i, u.Path, u.Visited, encodeTime(u.VisitedAt)); err != nil {
				return fmt.Errorf("failed to insert URL %s%s: %w", rec.Domain, u.Path, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the stored snapshot. It returns nil without error when the
// database holds no snapshot yet.
func (s *SnapshotStore) Load() (*frontier.Snapshot, error) {
	id, err := s.meta("id")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil // Nothing saved yet
	}

	takenAt, err := s.meta("taken_at_ns")
	if err != nil {
		return nil, err
	}
	takenNS, err := strconv.ParseInt(takenAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse taken_at_ns %q: %w", takenAt, err)
	}

	snap := &frontier.Snapshot{
		ID:      id,
		TakenAt: decodeTime(takenNS),
	}

	rows, err := s.db.Query(`
		SELECT id, domain, delay_ns, first_seen_ns, last_access_ns, busted, rules
		FROM domains
		ORDER BY domain ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var domainIDs []int64
	for rows.Next() {
		var (
			domainID                           int64
			rec                                frontier.DomainRecord
			delayNS, firstSeenNS, lastAccessNS int64
		)
		if err := rows.Scan(&domainID, &rec.Domain, &delayNS, &firstSeenNS, &lastAccessNS, &rec.Busted, &rec.Rules); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		rec.Delay = time.Duration(delayNS)
		rec.FirstSeen = decodeTime(firstSeenNS)
		rec.LastAccess = decodeTime(lastAccessNS)
		snap.Domains = append(snap.Domains, rec)
		domainIDs = append(domainIDs, domainID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read domains: %w", err)
	}

	for i := range snap.Domains {
		urls, err := s.loadURLs(domainIDs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to load URLs for %s: %w", snap.Domains[i].Domain, err)
		}
		snap.Domains[i].URLs = urls
	}

	return snap, nil
}

func (s *SnapshotStore) loadURLs(domainID int64) ([]frontier.URLRecord, error) {
	rows, err := s.db.Query(`
		SELECT path, visited, visited_at_ns
		FROM urls
		WHERE domain_id = ?
		ORDER BY position ASC
	`, domainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query URLs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var urls []frontier.URLRecord
	for rows.Next() {
		var (
			u           frontier.URLRecord
			visitedAtNS int64
		)
		if err := rows.Scan(&u.Path, &u.Visited, &visitedAtNS); err != nil {
			return nil, fmt.Errorf("failed to scan URL: %w", err)
		}
		u.VisitedAt = decodeTime(visitedAtNS)
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URLs: %w", err)
	}

	return urls, nil
}

// meta retrieves a metadata value, empty when the key is absent.
func (s *SnapshotStore) meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM snapshot_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// encodeTime maps the zero time to 0 so timestamps round-trip exactly.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
