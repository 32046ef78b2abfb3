package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const transferColumns = "id, requester, destination, filename, priority, status, chunks, bytes, error_message, digest, started_at, finished_at"

// Begin records an accepted request as active.
func (s *Store) Begin(ctx context.Context, t Transfer) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("history: transfer id required")
	}
	started := t.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO transfers (id, requester, destination, filename, priority, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Requester, t.Destination, t.Filename, t.Priority, StatusActive,
		started.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// Finish closes an active transfer with its outcome.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("history: finish with non-terminal status %q", out.Status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE transfers
         SET status = ?, chunks = ?, bytes = ?, error_message = ?, digest = ?, finished_at = ?
         WHERE id = ?`,
		out.Status, out.Chunks, out.Bytes, nullString(out.Error), nullString(out.Digest),
		time.Now().UTC().Format(timestampLayout), id,
	)
	if err != nil {
		return fmt.Errorf("finish transfer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	return nil
}

// Recover marks transfers left active by a previous server as aborted.
func (s *Store) Recover(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE transfers
         SET status = ?, error_message = 'server exited before the transfer finished', finished_at = ?
         WHERE status = ?`,
		StatusAborted, time.Now().UTC().Format(timestampLayout), StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("recover active transfers: %w", err)
	}
	return res.RowsAffected()
}

// Get returns the transfer with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Transfer, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+transferColumns+" FROM transfers WHERE id = ?", id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the most recent transfers, newest first. A non-positive limit
// returns every row.
func (s *Store) List(ctx context.Context, limit int) ([]*Transfer, error) {
	query := "SELECT " + transferColumns + " FROM transfers ORDER BY started_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

// Stats counts transfers per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM transfers GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("transfer stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func scanTransfer(scanner interface{ Scan(dest ...any) error }) (*Transfer, error) {
	var (
		t           Transfer
		status      string
		errorMsg    sql.NullString
		digest      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&t.ID, &t.Requester, &t.Destination, &t.Filename, &t.Priority,
		&status, &t.Chunks, &t.Bytes, &errorMsg, &digest, &startedRaw, &finishedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	t.Status = Status(status)
	t.Error = errorMsg.String
	t.Digest = digest.String
	t.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		t.FinishedAt = parseTime(finishedRaw.String)
	}
	return &t, nil
}

func parseTime(raw string) time.Time {
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
