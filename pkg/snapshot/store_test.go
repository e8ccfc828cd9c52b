package snapshot

import "testing"

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, _, ok, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	} else if ok {
		t.Fatal("Load() on fresh store ok = true, want false")
	}

	want := []byte(`{"last_applied":42}`)
	if err := s.Save(42, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	index, state, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false after Save, want true")
	}
	if index != 42 {
		t.Errorf("Load() index = %d, want 42", index)
	}
	if string(state) != string(want) {
		t.Errorf("Load() state = %s, want %s", state, want)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.Save(1, []byte("first")); err != nil {
		t.Fatalf("Save(1) error = %v", err)
	}
	if err := s.Save(2, []byte("second")); err != nil {
		t.Fatalf("Save(2) error = %v", err)
	}

	index, state, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || index != 2 || string(state) != "second" {
		t.Errorf("Load() = (%d, %s, %v), want (2, second, true)", index, state, ok)
	}
}

func TestReopenPreservesSnapshot(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Save(7, []byte("payload")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer s2.Close()

	index, state, ok, err := s2.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || index != 7 || string(state) != "payload" {
		t.Errorf("Load() after reopen = (%d, %s, %v), want (7, payload, true)", index, state, ok)
	}
}
