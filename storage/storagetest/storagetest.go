// Package storagetest holds a conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tablewait/waitlist-admin/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Storage

// Run executes the conformance suite against backends built by newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Run("SetAndGet", func(t *testing.T) { withStorage(t, newStorage, testSetAndGet) })
	t.Run("GetNonExistent", func(t *testing.T) { withStorage(t, newStorage, testGetNonExistent) })
	t.Run("Overwrite", func(t *testing.T) { withStorage(t, newStorage, testOverwrite) })
	t.Run("TTL", func(t *testing.T) { withStorage(t, newStorage, testTTL) })
	t.Run("InvalidTTL", func(t *testing.T) { withStorage(t, newStorage, testInvalidTTL) })
	t.Run("Namespaces", func(t *testing.T) { withStorage(t, newStorage, testNamespaces) })
	t.Run("DeleteKey", func(t *testing.T) { withStorage(t, newStorage, testDeleteKey) })
	t.Run("DeleteMissingKey", func(t *testing.T) { withStorage(t, newStorage, testDeleteMissingKey) })
	t.Run("DeleteNamespace", func(t *testing.T) { withStorage(t, newStorage, testDeleteNamespace) })
}

func withStorage(t *testing.T, newStorage Factory, fn func(t *testing.T, s storage.Storage)) {
	t.Helper()
	s := newStorage(t)
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	}()
	fn(t, s)
}

func mustGet(t *testing.T, s storage.Storage, key string, opts ...storage.Option) *storage.Item {
	t.Helper()
	item, err := s.Get(context.Background(), key, opts...)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return item
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	if err := s.Set(ctx, storage.KeyToken, []byte("tok-1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	item := mustGet(t, s, storage.KeyToken)
	if item == nil {
		t.Fatal("Get() returned nil item")
	}
	if string(item.Data) != "tok-1" {
		t.Fatalf("Get() returned wrong data: got %s, want tok-1", item.Data)
	}
	if item.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
	if item.ExpiresAt != nil {
		t.Fatal("ExpiresAt set without TTL")
	}
}

func testGetNonExistent(t *testing.T, s storage.Storage) {
	if item := mustGet(t, s, "missing"); item != nil {
		t.Fatalf("Get() of missing key returned %v", item)
	}
}

func testOverwrite(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyActiveBusinessID, []byte("a"))
	if err := s.Set(ctx, storage.KeyActiveBusinessID, []byte("b")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if item := mustGet(t, s, storage.KeyActiveBusinessID); item == nil || string(item.Data) != "b" {
		t.Fatalf("overwrite not visible: %v", item)
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	if err := s.Set(ctx, "short", []byte("x"), storage.WithTTL(150*time.Millisecond)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	item := mustGet(t, s, "short")
	if item == nil {
		t.Fatal("item missing before expiry")
	}
	if item.ExpiresAt == nil {
		t.Fatal("ExpiresAt not set with TTL")
	}

	time.Sleep(1100 * time.Millisecond)
	if item := mustGet(t, s, "short"); item != nil {
		t.Fatalf("item still present after expiry: %s", item.Data)
	}
}

func testInvalidTTL(t *testing.T, s storage.Storage) {
	err := s.Set(context.Background(), "k", []byte("v"), storage.WithTTL(-time.Second))
	if !errors.Is(err, storage.ErrInvalidOptions) {
		t.Fatalf("Set() with negative TTL = %v, want ErrInvalidOptions", err)
	}
}

func testNamespaces(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyToken, []byte("default"))
	_ = s.Set(ctx, storage.KeyToken, []byte("staging"), storage.WithProfile("staging"))
	_ = s.Set(ctx, storage.KeyToken, []byte("prod"), storage.WithProfile("prod"))

	for profile, want := range map[string]string{"": "default", "staging": "staging", "prod": "prod"} {
		item := mustGet(t, s, storage.KeyToken, storage.WithProfile(profile))
		if item == nil || string(item.Data) != want {
			t.Fatalf("profile %q: got %v, want %s", profile, item, want)
		}
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyToken, []byte("t"), storage.WithProfile("p"))
	_ = s.Set(ctx, storage.KeyActiveBusinessID, []byte("b"), storage.WithProfile("p"))

	if err := s.Delete(ctx, storage.WithProfile("p"), storage.WithKey(storage.KeyToken)); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if item := mustGet(t, s, storage.KeyToken, storage.WithProfile("p")); item != nil {
		t.Fatal("deleted key still present")
	}
	if item := mustGet(t, s, storage.KeyActiveBusinessID, storage.WithProfile("p")); item == nil {
		t.Fatal("sibling key removed by keyed delete")
	}
}

func testDeleteMissingKey(t *testing.T, s storage.Storage) {
	if err := s.Delete(context.Background(), storage.WithKey("never-set")); err != nil {
		t.Fatalf("Delete() of missing key failed: %v", err)
	}
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyToken, []byte("t"), storage.WithProfile("gone"))
	_ = s.Set(ctx, storage.KeyActiveBusinessID, []byte("b"), storage.WithProfile("gone"))
	_ = s.Set(ctx, storage.KeyToken, []byte("kept"), storage.WithProfile("kept"))

	if err := s.Delete(ctx, storage.WithProfile("gone")); err != nil {
		t.Fatalf("Delete() namespace failed: %v", err)
	}
	if item := mustGet(t, s, storage.KeyToken, storage.WithProfile("gone")); item != nil {
		t.Fatal("namespace key survived")
	}
	if item := mustGet(t, s, storage.KeyActiveBusinessID, storage.WithProfile("gone")); item != nil {
		t.Fatal("namespace key survived")
	}
	if item := mustGet(t, s, storage.KeyToken, storage.WithProfile("kept")); item == nil {
		t.Fatal("other namespace removed")
	}
}
