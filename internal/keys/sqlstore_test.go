package keys

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/halcyonos/halcyon/internal/database"
)

func setupStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "halcyon.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewSQLStore(db.DB)
}

func TestEnsureGeneratesAndPersists(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	k1, err := store.Ensure(ctx, "acme-crm", "main")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	k2, err := store.Ensure(ctx, "acme-crm", "main")
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	a, b := k1.NetworkKey(), k2.NetworkKey()
	if !bytes.Equal(a[:], b[:]) {
		t.Error("Ensure returned different seeds for the same binding")
	}

	k3, err := store.Ensure(ctx, "acme-crm", "admin")
	if err != nil {
		t.Fatalf("Ensure other interface: %v", err)
	}
	c := k3.NetworkKey()
	if bytes.Equal(a[:], c[:]) {
		t.Error("distinct interfaces share a seed")
	}
}

func TestForPackageScopesKeys(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.Ensure(ctx, "acme-crm", "main"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := store.Ensure(ctx, "acme-crm", ""); err != nil {
		t.Fatalf("Ensure unbound: %v", err)
	}
	if _, err := store.Ensure(ctx, "other-app", "main"); err != nil {
		t.Fatalf("Ensure other package: %v", err)
	}

	got, err := store.ForPackage(ctx, "acme-crm")
	if err != nil {
		t.Fatalf("ForPackage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got))
	}
	for _, k := range got {
		if k.Package() != "acme-crm" {
			t.Errorf("key scoped to %s leaked in", k.Package())
		}
	}
}

func TestRestoreOverwritesSeed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	orig, err := store.Ensure(ctx, "acme-crm", "main")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	seed := bytes.Repeat([]byte{7}, 32)
	if err := store.Restore(ctx, "acme-crm", "main", seed); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	after, err := store.Ensure(ctx, "acme-crm", "main")
	if err != nil {
		t.Fatalf("Ensure after restore: %v", err)
	}
	got := after.NetworkKey()
	if !bytes.Equal(got[:], seed) {
		t.Error("restored seed not returned")
	}
	before := orig.NetworkKey()
	if bytes.Equal(got[:], before[:]) {
		t.Error("restore did not overwrite the generated seed")
	}

	if err := store.Restore(ctx, "acme-crm", "main", []byte("short")); err == nil {
		t.Error("expected short seed to be rejected")
	}
}
