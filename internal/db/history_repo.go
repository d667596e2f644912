package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/user/mdview/internal/term"
)

// HistoryEntry is one audit row: a terminal session that was spawned,
// and, once it is gone, when it ended. EndedAt is zero while the session
// is still live.
type HistoryEntry struct {
	ID         string    `json:"id"`
	TerminalID string    `json:"terminalId"`
	Cwd        string    `json:"cwd"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	Command    string    `json:"command,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
}

type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// RecordSpawn inserts a history row for a freshly spawned session.
func (r *HistoryRepo) RecordSpawn(ctx context.Context, info term.SessionInfo, command string) error {
	id, err := newID()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO terminal_history (id, terminal_id, cwd, cols, rows, command, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, id, info.ID, info.Cwd, int(info.Cols), int(info.Rows), command, formatTimestamp(info.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record spawn of %q: %w", info.ID, err)
	}
	return nil
}

// RecordClosed stamps ended_at on the open history row for a terminal.
// Closing a terminal with no open row is a no-op.
func (r *HistoryRepo) RecordClosed(ctx context.Context, terminalID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE terminal_history SET ended_at = ?
WHERE terminal_id = ? AND ended_at IS NULL
`, formatTimestamp(time.Now()), terminalID)
	if err != nil {
		return fmt.Errorf("failed to record close of %q: %w", terminalID, err)
	}
	return nil
}

// Recent returns up to limit history rows, newest first.
func (r *HistoryRepo) Recent(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, terminal_id, cwd, cols, rows, command, started_at, ended_at
FROM terminal_history
ORDER BY started_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminal history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var startedRaw string
		var endedRaw sql.NullString

		if err := rows.Scan(&e.ID, &e.TerminalID, &e.Cwd, &e.Cols, &e.Rows, &e.Command, &startedRaw, &endedRaw); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		if e.StartedAt, err = parseTimestamp(startedRaw); err != nil {
			return nil, err
		}
		if endedRaw.Valid {
			if e.EndedAt, err = parseTimestamp(endedRaw.String); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}
