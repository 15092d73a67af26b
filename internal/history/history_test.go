package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendEntry(t *testing.T, s *Store, script, status string, at time.Time) *Entry {
	t.Helper()
	e := &Entry{
		Script:    script,
		Database:  "test",
		StartedAt: at,
		Status:    status,
	}
	if err := s.Append(e); err != nil {
		t.Fatalf("Append(%q) error = %v", script, err)
	}
	return e
}

func TestStore_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	appendEntry(t, s, "db.users.find()", StatusOK, base)
	appendEntry(t, s, "db.orders.count()", StatusOK, base.Add(time.Minute))
	appendEntry(t, s, "db.bad.syntax(", StatusError, base.Add(2*time.Minute))

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Recent() returned %d entries, want 3", len(entries))
	}
	if entries[0].Script != "db.bad.syntax(" {
		t.Errorf("newest entry = %q, want the last appended", entries[0].Script)
	}
	if entries[2].Script != "db.users.find()" {
		t.Errorf("oldest entry = %q, want the first appended", entries[2].Script)
	}
	if entries[0].Status != StatusError {
		t.Errorf("status = %q, want %q", entries[0].Status, StatusError)
	}
	if entries[0].Database != "test" {
		t.Errorf("database = %q, want test", entries[0].Database)
	}
}

func TestStore_Append_FillsDefaults(t *testing.T) {
	s := newTestStore(t)

	e := &Entry{Script: "db.version()", Status: StatusOK}
	if err := s.Append(e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if e.ID == "" {
		t.Error("Append() left ID empty")
	}
	if e.StartedAt.IsZero() {
		t.Error("Append() left StartedAt zero")
	}

	entries, err := s.Recent(1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if entries[0].ID != e.ID {
		t.Errorf("stored ID = %q, want %q", entries[0].ID, e.ID)
	}
	if entries[0].Meta != "{}" {
		t.Errorf("stored meta = %q, want empty object", entries[0].Meta)
	}
}

func TestStore_Recent_Limit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		appendEntry(t, s, "cmd", StatusOK, base.Add(time.Duration(i)*time.Second))
	}

	entries, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Recent(2) returned %d entries", len(entries))
	}

	entries, err = s.Recent(0)
	if err != nil || entries != nil {
		t.Errorf("Recent(0) = %v, %v, want nil, nil", entries, err)
	}
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	appendEntry(t, s, "db.users.find()", StatusOK, base)
	appendEntry(t, s, "db.users.insert({})", StatusOK, base.Add(time.Second))
	appendEntry(t, s, "db.orders.count()", StatusOK, base.Add(2*time.Second))

	entries, err := s.Search("users", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Search(users) returned %d entries, want 2", len(entries))
	}
	if entries[0].Script != "db.users.insert({})" {
		t.Errorf("newest match = %q", entries[0].Script)
	}
}

func TestStore_Search_EscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	appendEntry(t, s, "db.stats(100)", StatusOK, base)
	appendEntry(t, s, "load percent", StatusOK, base.Add(time.Second))

	// A literal % must not act as a wildcard.
	entries, err := s.Search("%", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Search(%%) matched %d entries, want 0", len(entries))
	}
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		appendEntry(t, s, "cmd", StatusOK, base.Add(time.Duration(i)*time.Second))
	}

	deleted, err := s.Prune(4)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 6 {
		t.Errorf("Prune() deleted %d, want 6", deleted)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() = %d after prune, want 4", n)
	}

	// The survivors are the newest four entries, appended at 6s through 9s.
	entries, _ := s.Recent(10)
	for _, e := range entries {
		if e.StartedAt.Before(base.Add(6*time.Second - time.Millisecond)) {
			t.Errorf("old entry survived prune: started %v", e.StartedAt)
		}
	}
}

func TestStore_Prune_UnderLimit(t *testing.T) {
	s := newTestStore(t)
	appendEntry(t, s, "cmd", StatusOK, time.Now())

	deleted, err := s.Prune(100)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("Prune() deleted %d under the limit, want 0", deleted)
	}

	deleted, err = s.Prune(0)
	if err != nil || deleted != 0 {
		t.Errorf("Prune(0) = %d, %v, want 0, nil", deleted, err)
	}
}

func TestEntry_Meta(t *testing.T) {
	meta := BuildMeta("mongodb://localhost:27017", errors.New("shell exited with code 1"))
	e := &Entry{Meta: meta}

	if got := e.Target(); got != "mongodb://localhost:27017" {
		t.Errorf("Target() = %q", got)
	}
	if got := e.ErrorText(); got != "shell exited with code 1" {
		t.Errorf("ErrorText() = %q", got)
	}
}

func TestBuildMeta_OmitsEmpty(t *testing.T) {
	if got := BuildMeta("", nil); got != "{}" {
		t.Errorf("BuildMeta with no values = %q, want {}", got)
	}

	meta := BuildMeta("mongodb://localhost:27017", nil)
	e := &Entry{Meta: meta}
	if e.ErrorText() != "" {
		t.Errorf("ErrorText() = %q for a success entry, want empty", e.ErrorText())
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	appendEntry(t, s, "db.version()", StatusOK, time.Now())
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopening sees the persisted entries.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	n, err := s2.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after reopen, want 1", n)
	}
}
