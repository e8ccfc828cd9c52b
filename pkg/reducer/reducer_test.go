package reducer

import (
	"errors"
	"testing"

	"github.com/distribd/distribd/pkg/distribdtypes"
)

func applyAll(t *testing.T, r *Reducer, entries []distribdtypes.Entry) {
	t.Helper()
	for i, e := range entries {
		if _, err := r.Apply(uint64(i+1), e); err != nil {
			t.Fatalf("Apply(%d) error = %v", i+1, err)
		}
	}
}

func sampleLog() []distribdtypes.Entry {
	return []distribdtypes.Entry{
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionBlobStored, Digest: "aaaa", Location: "node-a"}},
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionBlobMounted, Digest: "aaaa", Repository: "alpine"}},
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionManifestStored, Digest: "bbbb", Location: "node-a"}},
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionManifestMounted, Digest: "bbbb", Repository: "alpine"}},
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionHashTagged, Repository: "alpine", Tag: "3.11", Digest: "bbbb"}},
	}
}

func TestIsBlobAvailable(t *testing.T) {
	r := New(nil)
	applyAll(t, r, sampleLog())

	if !r.IsBlobAvailable("alpine", "aaaa") {
		t.Error("IsBlobAvailable(alpine, aaaa) = false, want true")
	}
	if r.IsBlobAvailable("busybox", "aaaa") {
		t.Error("IsBlobAvailable(busybox, aaaa) = true, want false (wrong repo)")
	}
	if r.IsBlobAvailable("alpine", "cccc") {
		t.Error("IsBlobAvailable(alpine, cccc) = true, want false (unknown digest)")
	}
}

func TestIsManifestAvailable(t *testing.T) {
	r := New(nil)
	applyAll(t, r, sampleLog())

	if !r.IsManifestAvailable("alpine", "bbbb") {
		t.Error("IsManifestAvailable(alpine, bbbb) = false, want true")
	}
}

func TestGetTag(t *testing.T) {
	r := New(nil)
	applyAll(t, r, sampleLog())

	digest, err := r.GetTag("alpine", "3.11")
	if err != nil {
		t.Fatalf("GetTag() error = %v", err)
	}
	if digest != "bbbb" {
		t.Errorf("GetTag() = %q, want %q", digest, "bbbb")
	}

	if _, err := r.GetTag("alpine", "latest"); !errors.Is(err, distribdtypes.ErrUnknownTag) {
		t.Errorf("GetTag(unknown) error = %v, want ErrUnknownTag", err)
	}
}

// TestTagMonotonicity covers property 7: reading a tag after a second
// hash-tagged commit for the same (repo, tag) must return the new digest,
// never the old one.
func TestTagMonotonicity(t *testing.T) {
	r := New(nil)
	log := []distribdtypes.Entry{
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionHashTagged, Repository: "alpine", Tag: "latest", Digest: "aaaa"}},
		{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionHashTagged, Repository: "alpine", Tag: "latest", Digest: "bbbb"}},
	}
	applyAll(t, r, log)

	digest, err := r.GetTag("alpine", "latest")
	if err != nil {
		t.Fatalf("GetTag() error = %v", err)
	}
	if digest != "bbbb" {
		t.Errorf("GetTag() = %q, want %q (latest write wins)", digest, "bbbb")
	}
}

// TestDeterminism covers property 3: two fresh reducers fed the same
// committed prefix yield identical indexes.
func TestDeterminism(t *testing.T) {
	log := sampleLog()

	r1 := New(nil)
	applyAll(t, r1, log)

	r2 := New(nil)
	applyAll(t, r2, log)

	if got, want := r1.GetTags("alpine"), r2.GetTags("alpine"); len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("GetTags() diverged: %v vs %v", got, want)
	}
	if r1.IsBlobAvailable("alpine", "aaaa") != r2.IsBlobAvailable("alpine", "aaaa") {
		t.Fatal("IsBlobAvailable() diverged between identically-fed reducers")
	}
	if r1.IsManifestAvailable("alpine", "bbbb") != r2.IsManifestAvailable("alpine", "bbbb") {
		t.Fatal("IsManifestAvailable() diverged between identically-fed reducers")
	}
}

func TestApplyRejectsOutOfOrderIndex(t *testing.T) {
	r := New(nil)
	entry := distribdtypes.Entry{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionBlobStored, Digest: "aaaa", Location: "node-a"}}

	if _, err := r.Apply(2, entry); err == nil {
		t.Fatal("Apply(2) on empty reducer error = nil, want error (expected index 1)")
	}

	if _, err := r.Apply(1, entry); err != nil {
		t.Fatalf("Apply(1) error = %v", err)
	}
	if _, err := r.Apply(1, entry); err == nil {
		t.Fatal("re-Apply(1) error = nil, want error (already applied)")
	}
}

func TestApplyUnknownAction(t *testing.T) {
	r := New(nil)
	entry := distribdtypes.Entry{Term: 1, Action: distribdtypes.ActionRecord{Type: "bogus-action"}}

	_, err := r.Apply(1, entry)
	if !errors.Is(err, distribdtypes.ErrUnknownAction) {
		t.Fatalf("Apply(unknown action) error = %v, want ErrUnknownAction", err)
	}
}

func TestBlobDeletedClearsIndexes(t *testing.T) {
	r := New(nil)
	applyAll(t, r, sampleLog())

	if _, err := r.Apply(6, distribdtypes.Entry{Term: 1, Action: distribdtypes.ActionRecord{Type: distribdtypes.ActionBlobDeleted, Digest: "aaaa"}}); err != nil {
		t.Fatalf("Apply(blob-deleted) error = %v", err)
	}

	if r.IsBlobAvailable("alpine", "aaaa") {
		t.Error("IsBlobAvailable() = true after blob-deleted, want false")
	}
	if locs := r.Locations(KindBlob, "aaaa"); len(locs) != 0 {
		t.Errorf("Locations() = %v after blob-deleted, want empty", locs)
	}
}
