package users

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreCreateAndFind(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u := &User{ID: "u-1", Email: "Ada@Example.com", TenantID: "tenant-a", Roles: []string{"hr"}, Status: StatusActive}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != "u-1" || got.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if err := s.Create(ctx, &User{ID: "u-2", Email: "ada@example.com"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, &User{ID: "u-1", Email: "a@b.com", Roles: []string{"hr"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Find(ctx, "u-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	got.Roles[0] = "admin"

	again, err := s.Find(ctx, "u-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if again.Roles[0] != "hr" {
		t.Fatal("stored user was mutated through a returned copy")
	}
}

func TestMemoryStoreUpdatePassword(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, &User{ID: "u-1", Email: "a@b.com", PasswordHash: "old"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.UpdatePassword(ctx, "u-1", "new"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	got, err := s.Find(ctx, "u-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.PasswordHash != "new" {
		t.Fatalf("password hash not updated: %s", got.PasswordHash)
	}
	if err := s.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
