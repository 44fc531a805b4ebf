package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists portal sessions. *DB is the Postgres
// implementation.
type SessionRepository interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	UpdateSessionPermissions(ctx context.Context, id uuid.UUID, perms PermissionSet, user PortalUser) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

const sessionColumns = `id, email, api_token, organization_id, agency_id,
	permissions, is_superuser, is_staff, expires_at, created_at`

// CreateSession stores a new session, clearing out expired ones first.
func (db *DB) CreateSession(ctx context.Context, sess *Session) error {
	if _, err := db.CleanupExpiredSessions(ctx); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sess.ID, sess.Email, sess.APIToken, sess.Organization, sess.Agency,
		sess.Permissions, sess.IsSuperuser, sess.IsStaff, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns an unexpired session or ErrSessionNotFound.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := db.GetContext(ctx, sess, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
		AND expires_at > NOW()
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// UpdateSessionPermissions stores the latest permission snapshot.
func (db *DB) UpdateSessionPermissions(ctx context.Context, id uuid.UUID, perms PermissionSet, user PortalUser) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions
		SET permissions = $2, is_superuser = $3, is_staff = $4
		WHERE id = $1
	`, id, perms, user.IsSuperuser, user.IsStaff)
	if err != nil {
		return fmt.Errorf("failed to update session permissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (db *DB) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id)
	return err
}

func (db *DB) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return res.RowsAffected()
}
