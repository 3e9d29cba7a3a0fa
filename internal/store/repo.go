package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/models"
)

const meetingColumns = `id, meeting_date, meeting_time, end_time, committee, meeting_type,
	location, address, subject, note, document_url, doc_checksum, doc_status,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(s scanner) (*models.Meeting, error) {
	var m models.Meeting
	err := s.Scan(&m.ID, &m.MeetingDate, &m.MeetingTime, &m.EndTime, &m.Committee, &m.MeetingType,
		&m.Location, &m.Address, &m.Subject, &m.Note, &m.DocumentURL, &m.DocChecksum, &m.DocStatus,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns meetings matching f in the requested order.
func (db *DB) List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error) {
	var (
		where []string
		args  []any
	)
	if f.From != "" {
		where = append(where, "meeting_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "meeting_date <= ?")
		args = append(args, f.To)
	}
	if f.Committee != "" {
		where = append(where, "committee = ?")
		args = append(args, f.Committee)
	}
	if f.DocStatus != nil {
		where = append(where, "doc_status = ?")
		args = append(args, int(*f.DocStatus))
	}
	if f.HasDocument != nil {
		if *f.HasDocument {
			where = append(where, "document_url <> ''")
		} else {
			where = append(where, "document_url = ''")
		}
	}

	q := `SELECT ` + meetingColumns + ` FROM meetings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	switch order {
	case models.OrderDateTime:
		q += " ORDER BY meeting_date ASC, meeting_time ASC, rowid ASC"
	default:
		q += " ORDER BY meeting_time ASC, rowid ASC"
	}
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", apperr.Transient(err))
	}
	defer rows.Close()

	out := []models.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Get returns the meeting with the given id.
func (db *DB) Get(ctx context.Context, id string) (*models.Meeting, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get: %w", apperr.Transient(err))
	}
	return m, nil
}

// Insert stores m under a fresh id (unless m.ID is already set) and returns it.
func (db *DB) Insert(ctx context.Context, m *models.Meeting) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO meetings (`+meetingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.MeetingDate, m.MeetingTime, m.EndTime, m.Committee, m.MeetingType,
		m.Location, m.Address, m.Subject, m.Note, m.DocumentURL, m.DocChecksum, int(m.DocStatus),
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", apperr.ErrAlreadyExists
		}
		return "", fmt.Errorf("store: insert: %w", apperr.Transient(err))
	}
	return m.ID, nil
}

// Update applies p to the stored meeting.
func (db *DB) Update(ctx context.Context, id string, p models.MeetingPatch) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", apperr.Transient(err))
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	m, err := scanMeeting(tx.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("store: update read: %w", apperr.Transient(err))
	}
	p.Apply(m)

	_, err = tx.ExecContext(ctx, `
		UPDATE meetings SET
			meeting_date = ?, meeting_time = ?, end_time = ?, committee = ?, meeting_type = ?,
			location = ?, address = ?, subject = ?, note = ?, doc_status = ?, updated_at = ?
		WHERE id = ?
	`, m.MeetingDate, m.MeetingTime, m.EndTime, m.Committee, m.MeetingType,
		m.Location, m.Address, m.Subject, m.Note, int(m.DocStatus), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update: %w", apperr.Transient(err))
	}
	return tx.Commit()
}

// Delete removes the meeting.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete: %w", apperr.Transient(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetDocument records the generated agenda without touching updated_at.
func (db *DB) SetDocument(ctx context.Context, id, url, checksum string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE meetings SET document_url = ?, doc_checksum = ? WHERE id = ?`, url, checksum, id)
	if err != nil {
		return fmt.Errorf("store: set document: %w", apperr.Transient(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ClearDocument detaches the agenda from the meeting.
func (db *DB) ClearDocument(ctx context.Context, id string) error {
	return db.SetDocument(ctx, id, "", "")
}

// Committees returns every committee ordered by name.
func (db *DB) Committees(ctx context.Context) ([]models.Committee, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM committees ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: committees: %w", apperr.Transient(err))
	}
	defer rows.Close()

	out := []models.Committee{}
	for rows.Next() {
		var c models.Committee
		if err := rows.Scan(&c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnsureCommittees inserts the named committees that do not exist yet.
func (db *DB) EnsureCommittees(ctx context.Context, names []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO committees (name) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("store: prepare committee insert: %w", err)
	}
	defer stmt.Close()
	for _, name := range names {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return fmt.Errorf("store: insert committee: %w", err)
		}
	}
	return tx.Commit()
}
