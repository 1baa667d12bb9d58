package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/emberid/ember/domain"
)

func TestNewStorageUnknownProvider(t *testing.T) {
	if _, err := NewStorage("bolt", "whatever", nil, true); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestNewStorageMigrationControl(t *testing.T) {
	ctx := context.Background()

	migrated, err := NewStorage("sqlite", filepath.Join(t.TempDir(), "m.db"), nil, true)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	if err := migrated.CreateToken(ctx, &domain.Token{ID: "t1", UID: "u1", Kind: domain.KindSession}); err != nil {
		t.Fatalf("migrated store should accept writes: %v", err)
	}

	// Without migration the schema is absent; the store opens but writes fail
	// until the deployment applies its own schema.
	bare, err := NewStorage("sqlite", filepath.Join(t.TempDir(), "b.db"), nil, false)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	if err := bare.CreateToken(ctx, &domain.Token{ID: "t1", UID: "u1", Kind: domain.KindSession}); err == nil {
		t.Fatal("write should fail against an unmigrated store")
	}
}
