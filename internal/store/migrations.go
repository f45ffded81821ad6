package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "entities: nodes of the memory graph",
		SQL: `
CREATE TABLE entities (
    id             TEXT PRIMARY KEY,
    owner_id       TEXT NOT NULL,
    entity_type    TEXT NOT NULL CHECK (entity_type IN ('person', 'project', 'concept', 'decision', 'preference')),
    name           TEXT NOT NULL CHECK (length(trim(name)) > 0),
    aliases        TEXT NOT NULL DEFAULT '[]',
    mention_count  INTEGER NOT NULL DEFAULT 0 CHECK (mention_count >= 0),
    last_mentioned INTEGER,
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_entities_owner ON entities(owner_id, created_at);
`,
	},
	{
		Version:     2,
		Description: "facts: relationships and attributes with lifecycle status",
		SQL: `
CREATE TABLE facts (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    subject_id    TEXT NOT NULL,
    predicate     TEXT NOT NULL CHECK (length(trim(predicate)) > 0),

    -- Exactly one of these is meaningful.
    object_id     TEXT,
    object_value  TEXT,

    confidence    REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    status        TEXT NOT NULL DEFAULT 'staged' CHECK (status IN ('staged', 'confirmed', 'superseded', 'retracted')),
    source        TEXT NOT NULL CHECK (source IN ('user_edit', 'file', 'system', 'conversation')),
    provenance    TEXT NOT NULL CHECK (provenance IN ('explicit', 'inference', 'import')),

    -- Usage
    access_count  INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
    last_accessed INTEGER,

    created_at    INTEGER NOT NULL,
    valid_until   INTEGER,

    CHECK ((status IN ('superseded', 'retracted')) = (valid_until IS NOT NULL)),
    FOREIGN KEY (subject_id) REFERENCES entities(id)
);

CREATE INDEX idx_facts_subject   ON facts(subject_id, status, confidence DESC, id);
CREATE INDEX idx_facts_status    ON facts(status);
CREATE INDEX idx_facts_predicate ON facts(subject_id, predicate);
`,
	},
	{
		Version:     3,
		Description: "interactions: read-only session timeline",
		SQL: `
CREATE TABLE interactions (
    id             TEXT PRIMARY KEY,
    owner_id       TEXT NOT NULL,
    entity_id      TEXT,
    created_at     INTEGER NOT NULL,
    topics         TEXT NOT NULL DEFAULT '[]',
    facts_created  TEXT NOT NULL DEFAULT '[]',
    facts_accessed TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_interactions_owner ON interactions(owner_id, created_at DESC);
`,
	},
	{
		Version:     4,
		Description: "entity_vectors: embedding vectors for anchor search",
		SQL: `
CREATE TABLE entity_vectors (
    entity_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.Get(&count, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_versions")
	return version, err
}
