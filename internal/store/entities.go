package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jacq-os/jacq/internal/memory"
)

const entityColumns = `id, owner_id, entity_type, name, aliases, mention_count, last_mentioned, created_at`

type entityRow struct {
	ID            string        `db:"id"`
	OwnerID       string        `db:"owner_id"`
	Type          string        `db:"entity_type"`
	Name          string        `db:"name"`
	Aliases       string        `db:"aliases"`
	MentionCount  int           `db:"mention_count"`
	LastMentioned sql.NullInt64 `db:"last_mentioned"`
	CreatedAt     int64         `db:"created_at"`
}

func (r entityRow) toEntity() (memory.Entity, error) {
	e := memory.Entity{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Type:         memory.EntityType(r.Type),
		Name:         r.Name,
		MentionCount: r.MentionCount,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.Aliases), &e.Aliases); err != nil {
		return e, fmt.Errorf("decode aliases for %s: %w", r.ID, err)
	}
	if r.LastMentioned.Valid {
		t := fromMillis(r.LastMentioned.Int64)
		e.LastMentioned = &t
	}
	return e, nil
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// InsertEntity stores a new entity. An empty ID is replaced by a fresh UUID and
// a zero CreatedAt by the current time. The stored entity is returned.
func (db *DB) InsertEntity(ctx context.Context, e memory.Entity) (*memory.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.now().UTC()
	}
	aliases, err := encodeStrings(e.Aliases)
	if err != nil {
		return nil, fmt.Errorf("encode aliases: %w", err)
	}
	var lastMentioned sql.NullInt64
	if e.LastMentioned != nil {
		lastMentioned = sql.NullInt64{Int64: toMillis(*e.LastMentioned), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OwnerID, string(e.Type), e.Name, aliases, e.MentionCount, lastMentioned, toMillis(e.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert entity: %w", err)
	}
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))
	return &e, nil
}

// GetEntity returns an entity by ID with its stored embedding, if any, or
// memory.ErrNotFound.
func (db *DB) GetEntity(ctx context.Context, id string) (*memory.Entity, error) {
	var row entityRow
	err := db.GetContext(ctx, &row, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	e, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	vec, err := db.GetVector(ctx, id)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		e.Embedding = vec.Embedding
	}
	return &e, nil
}

// EntitiesByIDs returns the entities for the given IDs. Unknown IDs are skipped;
// the result order is unspecified.
func (db *DB) EntitiesByIDs(ctx context.Context, ids []string) ([]memory.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+entityColumns+` FROM entities WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build entities query: %w", err)
	}
	var rows []entityRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("entities by ids: %w", err)
	}
	return toEntities(rows)
}

// ListEntities returns every entity of an owner in creation order. This is the
// store-defined order the keyword anchor fallback walks.
func (db *DB) ListEntities(ctx context.Context, ownerID string) ([]memory.Entity, error) {
	var rows []entityRow
	err := db.SelectContext(ctx, &rows, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = ?
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return toEntities(rows)
}

// MentionEntity bumps mention_count, sets last_mentioned and, when alias is new,
// appends it to the alias list.
func (db *DB) MentionEntity(ctx context.Context, id, alias string) (*memory.Entity, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mention: %w", err)
	}
	defer tx.Rollback()

	var row entityRow
	err = tx.GetContext(ctx, &row, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	e, err := row.toEntity()
	if err != nil {
		return nil, err
	}

	alias = strings.TrimSpace(alias)
	if alias != "" && !strings.EqualFold(alias, e.Name) && !containsFold(e.Aliases, alias) {
		e.Aliases = append(e.Aliases, alias)
	}
	aliases, err := encodeStrings(e.Aliases)
	if err != nil {
		return nil, fmt.Errorf("encode aliases: %w", err)
	}

	now := db.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities SET mention_count = mention_count + 1, last_mentioned = ?, aliases = ?
		WHERE id = ?
	`, toMillis(now), aliases, id); err != nil {
		return nil, fmt.Errorf("mention entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mention: %w", err)
	}

	e.MentionCount++
	mentioned := fromMillis(toMillis(now))
	e.LastMentioned = &mentioned
	return &e, nil
}

func toEntities(rows []entityRow) ([]memory.Entity, error) {
	out := make([]memory.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
