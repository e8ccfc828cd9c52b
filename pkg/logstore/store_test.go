package logstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/distribd/distribd/pkg/distribdtypes"
)

func entry(term uint64, digest string) distribdtypes.Entry {
	return distribdtypes.Entry{
		Term: term,
		Action: distribdtypes.ActionRecord{
			Type:     distribdtypes.ActionBlobStored,
			Digest:   digest,
			Location: "127.0.0.1:9080",
		},
	}
}

func TestAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "node.log"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	idx1, err := store.Append(entry(1, "aaaa"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	idx2, err := store.Append(entry(1, "bbbb"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if idx1 != 1 || idx2 != 2 {
		t.Fatalf("Append() indexes = %d, %d, want 1, 2", idx1, idx2)
	}

	got := store.Read(1, 2)
	if len(got) != 2 || got[0].Action.Digest != "aaaa" || got[1].Action.Digest != "bbbb" {
		t.Fatalf("Read(1, 2) = %+v, want entries for aaaa, bbbb", got)
	}

	if store.LastIndex() != 2 {
		t.Errorf("LastIndex() = %d, want 2", store.LastIndex())
	}
}

func TestRecoveryAfterRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.log")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store.Append(entry(1, "aaaa"))
	store.Append(entry(2, "bbbb"))
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on restart error = %v", err)
	}
	defer reopened.Close()

	if reopened.LastIndex() != 2 {
		t.Fatalf("LastIndex() after restart = %d, want 2", reopened.LastIndex())
	}
	if reopened.LastTerm() != 2 {
		t.Fatalf("LastTerm() after restart = %d, want 2", reopened.LastTerm())
	}
}

func TestTruncateSuffix(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "node.log"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	store.Append(entry(1, "aaaa"))
	store.Append(entry(1, "bbbb"))
	store.Append(entry(1, "cccc"))

	if err := store.TruncateSuffix(2); err != nil {
		t.Fatalf("TruncateSuffix(2) error = %v", err)
	}

	if store.LastIndex() != 1 {
		t.Fatalf("LastIndex() after truncate = %d, want 1", store.LastIndex())
	}

	// Appending after truncate should continue correctly, and the file on
	// disk should reflect only the retained + newly appended entries.
	store.Append(entry(2, "dddd"))
	if store.LastIndex() != 2 {
		t.Fatalf("LastIndex() after re-append = %d, want 2", store.LastIndex())
	}
	got := store.Read(1, 2)
	if got[0].Action.Digest != "aaaa" || got[1].Action.Digest != "dddd" {
		t.Fatalf("Read(1, 2) after truncate+append = %+v", got)
	}
}

func TestLoadDiscardsCorruptTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.log")

	if err := os.WriteFile(path, []byte("[1,{\"type\":\"blob-stored\",\"digest\":\"aaaa\"}]\nnot json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if store.LastIndex() != 1 {
		t.Fatalf("LastIndex() = %d, want 1 (corrupt trailing line discarded)", store.LastIndex())
	}
}

func TestLoadFailsOnCorruptNonTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.log")

	if err := os.WriteFile(path, []byte("not json\n[1,{\"type\":\"blob-stored\",\"digest\":\"aaaa\"}]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("Open() error = nil, want error for corrupt non-trailing line")
	}
}
