package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL so several instances share one
// session map and revocation set.
type PGStore struct {
	db     *sql.DB
	retain time.Duration
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB, opts ...StoreOption) *PGStore {
	cfg := newStoreConfig(opts)
	return &PGStore{db: db, retain: cfg.retain}
}

// OpenPG opens a pooled connection suitable for the token store.
func OpenPG(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (s *PGStore) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into auth_sessions(id, subject, tenant_id, created_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, sess.ID, sess.Subject, sess.TenantID, sess.CreatedAt, sess.ExpiresAt)
	return err
}

func (s *PGStore) Session(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		select id, subject, tenant_id, created_at, expires_at
		from auth_sessions where id = $1
	`, id).Scan(&sess.ID, &sess.Subject, &sess.TenantID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *PGStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from auth_sessions where id = $1`, id)
	return err
}

func (s *PGStore) SessionsBySubject(ctx context.Context, subject string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, subject, tenant_id, created_at, expires_at
		from auth_sessions where subject = $1
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Subject, &sess.TenantID, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PGStore) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens(id, expires_at)
		values ($1, $2)
		on conflict (id) do nothing
	`, id, expiresAt)
	return err
}

func (s *PGStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where id = $1)`, id,
	).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *PGStore) Compact(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	removed := 0
	res, err := tx.ExecContext(ctx, `
		with expired as (
			delete from auth_sessions where expires_at < $1 returning id, expires_at
		)
		insert into revoked_tokens(id, expires_at)
		select id, expires_at from expired
		on conflict (id) do nothing
	`, now)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}

	res, err = tx.ExecContext(ctx,
		`delete from revoked_tokens where expires_at < $1`, now.Add(-s.retain))
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}
