package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a request or artifact is not registered.
	ErrNotFound = errors.New("not found")
	// ErrStageConflict is returned by AdvanceStage when the request is not
	// at the expected stage.
	ErrStageConflict = errors.New("stage conflict")
)

// RequestRecord is one row of the requests table.
type RequestRecord struct {
	ID               string
	Workspace        string
	OriginalFilename string
	Stage            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastError        string
}

// ArtifactRecord is one row of the artifacts table.
type ArtifactRecord struct {
	RequestID string
	Role      string
	Path      string
	CreatedAt time.Time
}

// CreateRequest inserts a new request. UpdatedAt is set to CreatedAt.
func (db *DB) CreateRequest(ctx context.Context, r RequestRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO requests (request_id, workspace, original_filename, stage, created_at, updated_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, '')
	`, r.ID, r.Workspace, r.OriginalFilename, r.Stage, r.CreatedAt.UnixMilli(), r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create request %s: %w", r.ID, err)
	}
	return nil
}

// GetRequest returns the request with id, or ErrNotFound.
func (db *DB) GetRequest(ctx context.Context, id string) (*RequestRecord, error) {
	var (
		r                RequestRecord
		created, updated int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT request_id, workspace, original_filename, stage, created_at, updated_at, last_error
		FROM requests WHERE request_id = ?
	`, id).Scan(&r.ID, &r.Workspace, &r.OriginalFilename, &r.Stage, &created, &updated, &r.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	r.CreatedAt = time.UnixMilli(created)
	r.UpdatedAt = time.UnixMilli(updated)
	return &r, nil
}

// AdvanceStage moves request id from stage from to stage to. It fails with
// ErrStageConflict if the stored stage is not from, so two writers cannot
// both advance the same request.
func (db *DB) AdvanceStage(ctx context.Context, id, from, to string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE requests SET stage = ?, updated_at = ?, last_error = ''
		WHERE request_id = ? AND stage = ?
	`, to, at.UnixMilli(), id, from)
	if err != nil {
		return fmt.Errorf("advance request %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance request %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("request %s not at stage %s: %w", id, from, ErrStageConflict)
	}
	return nil
}

// SetLastError records the most recent failure for request id.
func (db *DB) SetLastError(ctx context.Context, id, msg string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE requests SET last_error = ?, updated_at = ? WHERE request_id = ?
	`, msg, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set last error for %s: %w", id, err)
	}
	return nil
}

// RecordArtifact registers path as the artifact of role for request id,
// replacing any earlier artifact of the same role.
func (db *DB) RecordArtifact(ctx context.Context, a ArtifactRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO artifacts (request_id, role, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_id, role) DO UPDATE SET path = excluded.path, created_at = excluded.created_at
	`, a.RequestID, a.Role, a.Path, a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record %s artifact for %s: %w", a.Role, a.RequestID, err)
	}
	return nil
}

// LookupArtifact returns the artifact registered at path, or ErrNotFound.
func (db *DB) LookupArtifact(ctx context.Context, path string) (*ArtifactRecord, error) {
	var (
		a       ArtifactRecord
		created int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT request_id, role, path, created_at FROM artifacts
		WHERE path = ? ORDER BY id DESC LIMIT 1
	`, path).Scan(&a.RequestID, &a.Role, &a.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %s: %w", path, err)
	}
	a.CreatedAt = time.UnixMilli(created)
	return &a, nil
}

// Artifacts returns every artifact of request id in the order recorded.
func (db *DB) Artifacts(ctx context.Context, id string) ([]ArtifactRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT request_id, role, path, created_at FROM artifacts
		WHERE request_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", id, err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var (
			a       ArtifactRecord
			created int64
		)
		if err := rows.Scan(&a.RequestID, &a.Role, &a.Path, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentRequests returns up to limit requests, newest first.
func (db *DB) RecentRequests(ctx context.Context, limit int) ([]RequestRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT request_id, workspace, original_filename, stage, created_at, updated_at, last_error
		FROM requests ORDER BY created_at DESC, request_id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var (
			r                RequestRecord
			created, updated int64
		)
		if err := rows.Scan(&r.ID, &r.Workspace, &r.OriginalFilename, &r.Stage, &created, &updated, &r.LastError); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		r.UpdatedAt = time.UnixMilli(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}
