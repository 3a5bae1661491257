package storage

import (
	"time"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
)

// Push attempt outcomes recorded in the audit trail.
const (
	PushStatusSuccess = "success"
	PushStatusError   = "error"
	PushStatusSkipped = "skipped"
)

// PushLogEntry is one recorded push attempt.
type PushLogEntry struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Folder    string    `json:"folder"`
	Language  string    `json:"language"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordPush appends an entry to the push audit trail.
func (s *Store) RecordPush(entry PushLogEntry) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO push_log (slug, folder, language, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Slug, entry.Folder, entry.Language, entry.Status, entry.Detail, created)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "record push")
	}
	return nil
}

// ListPushes returns the most recent push attempts, newest first.
func (s *Store) ListPushes(limit int) ([]PushLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, slug, folder, language, status, detail, created_at
		FROM push_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "list pushes")
	}
	defer rows.Close()

	var entries []PushLogEntry
	for rows.Next() {
		var e PushLogEntry
		if err := rows.Scan(&e.ID, &e.Slug, &e.Folder, &e.Language, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "scan push entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "iterate pushes")
	}
	return entries, nil
}
