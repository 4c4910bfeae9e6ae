package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkral/importer/internal/core/cursor"
)

// CursorRepo implements cursor.Repository on PostgreSQL. The checkpoint is
// stored as a JSON document; its shape (primary/alternatives/metadata) is
// owned by the cursor package, not the schema.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a PostgreSQL checkpoint repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

func (r *CursorRepo) Get(ctx context.Context, streamID string) (*cursor.State, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw,
		`SELECT state FROM import_cursors WHERE stream_id = $1`, streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cursor.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}

	var state cursor.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return &state, nil
}

func (r *CursorRepo) Save(ctx context.Context, streamID string, state *cursor.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO import_cursors (stream_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		streamID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (r *CursorRepo) Delete(ctx context.Context, streamID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM import_cursors WHERE stream_id = $1`, streamID)
	if err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

func (r *CursorRepo) List(ctx context.Context) (map[string]*cursor.State, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT stream_id, state FROM import_cursors ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*cursor.State)
	for rows.Next() {
		var (
			streamID string
			raw      []byte
		)
		if err := rows.Scan(&streamID, &raw); err != nil {
			return nil, fmt.Errorf("scan cursor row: %w", err)
		}
		var state cursor.State
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("decode cursor %s: %w", streamID, err)
		}
		out[streamID] = &state
	}
	return out, rows.Err()
}
