package token

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreSessionLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := Session{ID: "jti-1", Subject: "user-1", TenantID: "tenant-a", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	mock.ExpectExec("insert into auth_sessions").
		WithArgs(sess.ID, sess.Subject, sess.TenantID, sess.CreatedAt, sess.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "subject", "tenant_id", "created_at", "expires_at"}).
		AddRow(sess.ID, sess.Subject, sess.TenantID, sess.CreatedAt, sess.ExpiresAt)
	mock.ExpectQuery("select id, subject, tenant_id, created_at, expires_at").
		WithArgs(sess.ID).WillReturnRows(rows)
	got, err := store.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got.Subject != "user-1" || got.TenantID != "tenant-a" {
		t.Fatalf("unexpected session: %+v", got)
	}

	mock.ExpectQuery("select id, subject, tenant_id, created_at, expires_at").
		WithArgs("missing").WillReturnError(sql.ErrNoRows)
	if _, err := store.Session(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	mock.ExpectExec("delete from auth_sessions").
		WithArgs(sess.ID).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRevocation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	ctx := context.Background()
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", exp).WillReturnResult(sqlmock.NewResult(1, 1))
	if err := store.Revoke(ctx, "jti-1", exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked: revoked=%v err=%v", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreCompact(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("with expired as").
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("delete from revoked_tokens").
		WithArgs(now.Add(-defaultRevocationRetention)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	removed, err := store.Compact(ctx, now)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 5 {
		t.Fatalf("expected 5 removed entries, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
