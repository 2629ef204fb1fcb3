// chat_log_repository.go implements ChatLogRepository, the PostgreSQL audit.Store
// and audit.Reader for the digest-only chat_logs table.
package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/careline/careline/internal/audit"
	"github.com/careline/careline/internal/db/models"
)

// ChatLogRepository handles chat_logs database operations
type ChatLogRepository struct {
	db *sqlx.DB
}

// NewChatLogRepository creates a new ChatLogRepository
func NewChatLogRepository(db *sqlx.DB) *ChatLogRepository {
	return &ChatLogRepository{db: db}
}

var (
	_ audit.Store  = (*ChatLogRepository)(nil)
	_ audit.Reader = (*ChatLogRepository)(nil)
)

// Append inserts an entry and sets its ID
func (r *ChatLogRepository) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.HashedQuery.IsZero() || entry.HashedResponse.IsZero() {
		return fmt.Errorf("chat log entry requires both digests")
	}

	query := `
		INSERT INTO chat_logs (hashed_query, hashed_response, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id`

	return r.db.QueryRowxContext(ctx, query,
		entry.HashedQuery.String(),
		entry.HashedResponse.String(),
		entry.Timestamp,
	).Scan(&entry.ID)
}

// ListRecent returns up to limit entries, newest first
func (r *ChatLogRepository) ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error) {
	var rows []models.ChatLog
	query := `
		SELECT id, hashed_query, hashed_response, timestamp
		FROM chat_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	return toEntries(rows)
}

// ListByQueryDigest returns up to limit entries for one query digest, newest first
func (r *ChatLogRepository) ListByQueryDigest(ctx context.Context, d audit.Digest, limit int) ([]*audit.Entry, error) {
	var rows []models.ChatLog
	query := `
		SELECT id, hashed_query, hashed_response, timestamp
		FROM chat_logs
		WHERE hashed_query = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, d.String(), limit); err != nil {
		return nil, err
	}
	return toEntries(rows)
}

// Count returns the total number of stored entries
func (r *ChatLogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chat_logs`)
	return n, err
}

func toEntries(rows []models.ChatLog) ([]*audit.Entry, error) {
	out := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		q, err := audit.ParseDigest(row.HashedQuery)
		if err != nil {
			return nil, fmt.Errorf("chat_logs row %d: %w", row.ID, err)
		}
		a, err := audit.ParseDigest(row.HashedResponse)
		if err != nil {
			return nil, fmt.Errorf("chat_logs row %d: %w", row.ID, err)
		}
		out = append(out, &audit.Entry{
			ID:             row.ID,
			HashedQuery:    q,
			HashedResponse: a,
			Timestamp:      row.Timestamp,
		})
	}
	return out, nil
}
