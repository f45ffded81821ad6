package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jacq-os/jacq/internal/memory"
)

const factColumns = `id, owner_id, subject_id, predicate, object_id, object_value, confidence,
	status, source, provenance, access_count, last_accessed, created_at, valid_until`

type factRow struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	SubjectID    string         `db:"subject_id"`
	Predicate    string         `db:"predicate"`
	ObjectID     sql.NullString `db:"object_id"`
	ObjectValue  sql.NullString `db:"object_value"`
	Confidence   float64        `db:"confidence"`
	Status       string         `db:"status"`
	Source       string         `db:"source"`
	Provenance   string         `db:"provenance"`
	AccessCount  int            `db:"access_count"`
	LastAccessed sql.NullInt64  `db:"last_accessed"`
	CreatedAt    int64          `db:"created_at"`
	ValidUntil   sql.NullInt64  `db:"valid_until"`
}

func (r factRow) toFact() memory.Fact {
	f := memory.Fact{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		SubjectID:   r.SubjectID,
		Predicate:   r.Predicate,
		Object:      memory.ObjectFromColumns(r.ObjectID.String, r.ObjectValue.String),
		Confidence:  r.Confidence,
		Status:      memory.Status(r.Status),
		Source:      memory.Source(r.Source),
		Provenance:  memory.Provenance(r.Provenance),
		AccessCount: r.AccessCount,
		Timestamp:   fromMillis(r.CreatedAt),
	}
	if r.LastAccessed.Valid {
		t := fromMillis(r.LastAccessed.Int64)
		f.LastAccessed = &t
	}
	if r.ValidUntil.Valid {
		t := fromMillis(r.ValidUntil.Int64)
		f.ValidUntil = &t
	}
	return f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// InsertFact stores a fact as given. An empty ID is replaced by a fresh UUID and
// a zero Timestamp by the current time.
func (db *DB) InsertFact(ctx context.Context, f memory.Fact) (*memory.Fact, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = db.now().UTC()
	}
	objectID, objectValue := f.Object.Columns()

	_, err := db.ExecContext(ctx, `
		INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OwnerID, f.SubjectID, f.Predicate,
		nullString(objectID), nullString(objectValue), f.Confidence,
		string(f.Status), string(f.Source), string(f.Provenance),
		f.AccessCount, nullMillis(f.LastAccessed), toMillis(f.Timestamp), nullMillis(f.ValidUntil),
	)
	if err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}
	return db.GetFact(ctx, f.ID)
}

// GetFact returns a fact by ID, or memory.ErrNotFound.
func (db *DB) GetFact(ctx context.Context, id string) (*memory.Fact, error) {
	return getFact(ctx, db.DB, id)
}

func getFact(ctx context.Context, q sqlx.QueryerContext, id string) (*memory.Fact, error) {
	var row factRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fact %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	f := row.toFact()
	return &f, nil
}

// FactsBySubject returns the outgoing facts of an entity whose status is one of
// statuses, ordered by confidence descending then ID ascending. A limit <= 0
// returns every matching fact.
func (db *DB) FactsBySubject(ctx context.Context, entityID string, statuses []memory.Status, limit int) ([]memory.Fact, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + factColumns + ` FROM facts
		WHERE subject_id = ? AND status IN (?)
		ORDER BY confidence DESC, id ASC`
	args := []any{entityID, statusStrings(statuses)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build facts query: %w", err)
	}
	var rows []factRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("facts by subject: %w", err)
	}
	return toFacts(rows), nil
}

// FactsByStatus returns every fact with the given status in ID order.
func (db *DB) FactsByStatus(ctx context.Context, status memory.Status) ([]memory.Fact, error) {
	var rows []factRow
	err := db.SelectContext(ctx, &rows, `
		SELECT `+factColumns+` FROM facts WHERE status = ? ORDER BY id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("facts by status: %w", err)
	}
	return toFacts(rows), nil
}

// UpdateFactStatus is a compare-and-set status change: the row is updated only
// while its status still equals expected. It returns memory.ErrNotFound when the
// fact does not exist and memory.ErrConcurrentModification when another writer
// moved it first.
func (db *DB) UpdateFactStatus(ctx context.Context, id string, expected, next memory.Status, validUntil *time.Time) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE facts SET status = ?, valid_until = ?
		WHERE id = ? AND status = ?
	`, string(next), nullMillis(validUntil), id, string(expected))
	if err != nil {
		return fmt.Errorf("update fact status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fact status: %w", err)
	}
	if n == 0 {
		current, err := getFact(ctx, tx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("fact %s is %s, expected %s: %w", id, current.Status, expected, memory.ErrConcurrentModification)
	}
	return tx.Commit()
}

// RecordAccess increments access_count and sets last_accessed to now. It
// returns the updated fact.
func (db *DB) RecordAccess(ctx context.Context, id string) (*memory.Fact, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE facts SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, toMillis(db.now()), id)
	if err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("fact %s: %w", id, memory.ErrNotFound)
	}
	return db.GetFact(ctx, id)
}

// FactCounts returns the number of facts per status.
func (db *DB) FactCounts(ctx context.Context) (map[memory.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM facts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count facts: %w", err)
	}
	out := make(map[memory.Status]int, len(rows))
	for _, r := range rows {
		out[memory.Status(r.Status)] = r.Count
	}
	return out, nil
}

func statusStrings(statuses []memory.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toFacts(rows []factRow) []memory.Fact {
	out := make([]memory.Fact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFact())
	}
	return out
}
