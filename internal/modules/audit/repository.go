// Package audit records who changed the ledger and fans the trail out to Kafka.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// entryColumns is the list of columns for the activity_log table.
// Column order must match scanEntry.
const entryColumns = `id, actor_id, action_type, target_type, target_id, description, metadata, created_at`

// Entry is one audit trail record
type Entry struct {
	CreatedAt   time.Time              `json:"created_at" msgpack:"created_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	ID          string                 `json:"id" msgpack:"id"`
	ActorID     string                 `json:"actor_id" msgpack:"actor_id"`
	ActionType  string                 `json:"action_type" msgpack:"action_type"`
	TargetType  string                 `json:"target_type" msgpack:"target_type"`
	TargetID    string                 `json:"target_id" msgpack:"target_id"`
	Description string                 `json:"description" msgpack:"description"`
}

// Repository stores audit entries in ledger.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// Record appends an entry, populating ID and CreatedAt when empty
func (r *Repository) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log
		(id, actor_id, action_type, target_type, target_id, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.ActorID,
		e.ActionType,
		e.TargetType,
		e.TargetID,
		e.Description,
		metadata,
		e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

// ListByTarget returns the trail of one target, newest first
func (r *Repository) ListByTarget(ctx context.Context, targetType, targetID string) ([]Entry, error) {
	return r.list(ctx,
		"SELECT "+entryColumns+" FROM activity_log WHERE target_type = ? AND target_id = ? ORDER BY created_at DESC, rowid DESC",
		targetType, targetID)
}

// ListRecent returns the latest entries across all targets
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return r.list(ctx,
		"SELECT "+entryColumns+" FROM activity_log ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var metadata sql.NullString
	var createdAt int64

	if err := rows.Scan(
		&e.ID,
		&e.ActorID,
		&e.ActionType,
		&e.TargetType,
		&e.TargetID,
		&e.Description,
		&metadata,
		&createdAt,
	); err != nil {
		return e, err
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return e, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
	}
	e.CreatedAt = time.Unix(0, createdAt)
	return e, nil
}
