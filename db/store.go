package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/livechat-tender/livechat"
)

// Default and maximum page sizes for list queries.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// SessionRow is one attach of a recorder to a broadcast.
type SessionRow struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	BroadcastID string     `json:"broadcast_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	EndReason   string     `json:"end_reason,omitempty"`
}

// CommentRow is an archived comment.
type CommentRow struct {
	SessionID       string          `json:"session_id"`
	CommentID       string          `json:"comment_id"`
	BroadcastID     string          `json:"broadcast_id"`
	AuthorName      string          `json:"author_name"`
	AuthorChannelID string          `json:"author_channel_id"`
	Message         string          `json:"message"`
	IsSuperChat     bool            `json:"is_super_chat"`
	Amount          string          `json:"amount,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// Store persists sessions and comments.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB returns the underlying handle (used by readiness checks).
func (s *Store) DB() *sql.DB { return s.db }

// CreateSession records a new session and returns its id.
func (s *Store) CreateSession(ctx context.Context, target, broadcastID string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO live_sessions(id, target, broadcast_id, started_at) VALUES($1,$2,$3,$4)`,
		id, target, broadcastID, startedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// EndSession marks a session ended. Ending an already ended session keeps the first reason.
func (s *Store) EndSession(ctx context.Context, id, reason string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE live_sessions SET ended_at=$2, end_reason=$3 WHERE id=$1 AND ended_at IS NULL`,
		id, endedAt.UTC(), reason)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// InsertComment archives c. It reports false when the comment was already stored.
func (s *Store) InsertComment(ctx context.Context, sessionID, broadcastID string, c livechat.Comment) (bool, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("marshal comment: %w", err)
	}
	var amount string
	if c.SuperChat != nil {
		amount = c.SuperChat.Amount
	} else if c.SuperSticker != nil {
		amount = c.SuperSticker.Amount
	}
	var sid any
	if sessionID != "" {
		sid = sessionID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO live_comments(session_id, comment_id, broadcast_id, author_name, author_channel_id, message,
			is_super_chat, amount, timestamp, raw, is_membership, is_moderator)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (broadcast_id, comment_id) DO NOTHING`,
		sid, c.ID, broadcastID, c.Author.Name, c.Author.ChannelID, c.Text(),
		c.SuperChat != nil || c.SuperSticker != nil, amount, c.Timestamp.UTC(), string(raw),
		c.IsMembership, c.Author.IsModerator)
	if err != nil {
		return false, fmt.Errorf("insert comment %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListComments returns comments of a broadcast with timestamp after since, oldest first.
func (s *Store) ListComments(ctx context.Context, broadcastID string, since time.Time, limit int) ([]CommentRow, error) {
	limit = ClampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(session_id::text,''), comment_id, broadcast_id, COALESCE(author_name,''), COALESCE(author_channel_id,''),
			COALESCE(message,''), COALESCE(is_super_chat,false), COALESCE(amount,''), timestamp, COALESCE(raw::text,'')
		 FROM live_comments WHERE broadcast_id=$1 AND timestamp > $2
		 ORDER BY timestamp ASC, id ASC LIMIT $3`,
		broadcastID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]CommentRow, 0, limit)
	for rows.Next() {
		var r CommentRow
		var raw string
		if err := rows.Scan(&r.SessionID, &r.CommentID, &r.BroadcastID, &r.AuthorName, &r.AuthorChannelID,
			&r.Message, &r.IsSuperChat, &r.Amount, &r.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if raw != "" {
			r.Raw = json.RawMessage(raw)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	limit = ClampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id::text, target, broadcast_id, started_at, ended_at, COALESCE(end_reason,'')
		 FROM live_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.Target, &r.BroadcastID, &r.StartedAt, &ended, &r.EndReason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClampLimit maps non-positive limits to DefaultListLimit and caps at MaxListLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
