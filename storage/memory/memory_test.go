package memory

import (
	"context"
	"testing"

	"github.com/tablewait/waitlist-admin/storage"
	"github.com/tablewait/waitlist-admin/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := New(100)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		return s
	})
}

func TestNewDefaultsCapacity(t *testing.T) {
	s, err := New(0)
	if err != nil {
		t.Fatalf("New(0) failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Set(ctx, string(rune('a'+i)), []byte("v")); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}
	if got := s.cache.Len(); got != 10 {
		t.Fatalf("cache holds %d items, want 10", got)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"))
	_ = s.Set(ctx, "b", []byte("2"))
	_ = s.Set(ctx, "c", []byte("3"))

	if item, _ := s.Get(ctx, "a"); item != nil {
		t.Fatal("oldest key was not evicted")
	}
	if item, _ := s.Get(ctx, "c"); item == nil {
		t.Fatal("newest key missing")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, storage.KeyToken, []byte("abc"))

	item, _ := s.Get(ctx, storage.KeyToken)
	item.Data[0] = 'X'

	again, _ := s.Get(ctx, storage.KeyToken)
	if string(again.Data) != "abc" {
		t.Fatalf("stored data mutated through returned item: %s", again.Data)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}
