package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jacq-os/jacq/internal/memory"
)

type interactionRow struct {
	ID            string         `db:"id"`
	OwnerID       string         `db:"owner_id"`
	EntityID      sql.NullString `db:"entity_id"`
	CreatedAt     int64          `db:"created_at"`
	Topics        string         `db:"topics"`
	FactsCreated  string         `db:"facts_created"`
	FactsAccessed string         `db:"facts_accessed"`
}

func (r interactionRow) toInteraction() (memory.Interaction, error) {
	in := memory.Interaction{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		EntityID:  r.EntityID.String,
		Timestamp: fromMillis(r.CreatedAt),
	}
	for _, col := range []struct {
		raw string
		dst *[]string
	}{
		{r.Topics, &in.Topics},
		{r.FactsCreated, &in.FactsCreated},
		{r.FactsAccessed, &in.FactsAccessed},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return in, fmt.Errorf("decode interaction %s: %w", r.ID, err)
		}
	}
	return in, nil
}

// InsertInteraction appends a session record to the timeline.
func (db *DB) InsertInteraction(ctx context.Context, in memory.Interaction) (*memory.Interaction, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = db.now().UTC()
	}
	topics, err := encodeStrings(in.Topics)
	if err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}
	created, err := encodeStrings(in.FactsCreated)
	if err != nil {
		return nil, fmt.Errorf("encode facts_created: %w", err)
	}
	accessed, err := encodeStrings(in.FactsAccessed)
	if err != nil {
		return nil, fmt.Errorf("encode facts_accessed: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO interactions (id, owner_id, entity_id, created_at, topics, facts_created, facts_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.OwnerID, nullString(in.EntityID), toMillis(in.Timestamp), topics, created, accessed)
	if err != nil {
		return nil, fmt.Errorf("insert interaction: %w", err)
	}
	in.Timestamp = fromMillis(toMillis(in.Timestamp))
	return &in, nil
}

// RecentInteractions returns up to limit interactions of an owner, newest first.
func (db *DB) RecentInteractions(ctx context.Context, ownerID string, limit int) ([]memory.Interaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []interactionRow
	err := db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, entity_id, created_at, topics, facts_created, facts_accessed
		FROM interactions
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	out := make([]memory.Interaction, 0, len(rows))
	for _, r := range rows {
		in, err := r.toInteraction()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}
