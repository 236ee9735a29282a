package storage

const schemaSQL = `
-- One database holds exactly one snapshot: snapshot_meta carries its
-- identity, domains and urls carry the frontier contents.
CREATE TABLE IF NOT EXISTS snapshot_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS domains (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT UNIQUE NOT NULL,

    -- Politeness bookkeeping. Times are stored as UnixNano with 0 meaning
    -- "never", so values survive a round-trip exactly.
    delay_ns INTEGER NOT NULL DEFAULT 0,
    first_seen_ns INTEGER NOT NULL DEFAULT 0,
    last_access_ns INTEGER NOT NULL DEFAULT 0,

    busted INTEGER NOT NULL DEFAULT 0,

    -- Raw robots.txt body, NULL when none was recorded
    rules BLOB
);

-- URL entries keep their queue order through the position column
CREATE TABLE IF NOT EXISTS urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain_id INTEGER NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    path TEXT NOT NULL,
    visited INTEGER NOT NULL DEFAULT 0,
    visited_at_ns INTEGER NOT NULL DEFAULT 0,
    UNIQUE(domain_id, path)
);

-- Indexes for efficient querying
CREATE INDEX IF NOT EXISTS idx_urls_domain_position ON urls(domain_id, position);
CREATE INDEX IF NOT EXISTS idx_urls_domain_visited ON urls(domain_id, visited);

-- View for external progress monitoring (sqlite3 CLI, dashboards)
CREATE VIEW IF NOT EXISTS domain_progress AS
SELECT
    d.domain,
    COUNT(u.id) AS known,
    SUM(CASE WHEN u.visited = 1 THEN 1 ELSE 0 END) AS visited,
    d.busted
FROM domains d
LEFT JOIN urls u ON u.domain_id = d.id
GROUP BY d.id
ORDER BY d.domain;
`
