package localstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var testDBCounter uint64

// newTestStore opens a SQLite store on a unique temp file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	id := atomic.AddUint64(&testDBCounter, 1)
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("store%d.db", id))
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("danti_token", "Bearer abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("danti_token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "Bearer abc" {
		t.Errorf("Get: got %q, want %q", got, "Bearer abc")
	}

	// Overwrite replaces, never appends.
	if err := s.Set("danti_token", "Bearer xyz"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err = s.Get("danti_token")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got != "Bearer xyz" {
		t.Errorf("after overwrite: got %q, want %q", got, "Bearer xyz")
	}
}

func TestSQLiteStore_AbsentKey(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get absent key: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_RemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove: got %v, want ErrNotFound", err)
	}
	// Removing again must not error.
	if err := s.Remove("k"); err != nil {
		t.Errorf("Remove absent key: %v", err)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "persist.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("danti_token", "Bearer persisted"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s2, err := Open(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get("danti_token")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got != "Bearer persisted" {
		t.Errorf("after reopen: got %q", got)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store Get: got %v, want ErrNotFound", err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("k")
	if err != nil || got != "v" {
		t.Errorf("Get: got %q, %v", got, err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove: got %v, want ErrNotFound", err)
	}
}
