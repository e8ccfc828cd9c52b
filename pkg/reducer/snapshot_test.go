package reducer

import "testing"

// TestExportRestoreRoundTrip covers property 3 applied to the snapshot
// path: a reducer restored from an exported snapshot must answer queries
// identically to the reducer it was exported from.
func TestExportRestoreRoundTrip(t *testing.T) {
	r1 := New(nil)
	applyAll(t, r1, sampleLog())

	data, index, err := r1.ExportState()
	if err != nil {
		t.Fatalf("ExportState() error = %v", err)
	}
	if index != uint64(len(sampleLog())) {
		t.Fatalf("ExportState() index = %d, want %d", index, len(sampleLog()))
	}

	r2 := New(nil)
	if err := r2.RestoreState(data); err != nil {
		t.Fatalf("RestoreState() error = %v", err)
	}

	if r2.LastApplied() != r1.LastApplied() {
		t.Errorf("LastApplied() = %d, want %d", r2.LastApplied(), r1.LastApplied())
	}
	if !r2.IsBlobAvailable("alpine", "aaaa") {
		t.Error("IsBlobAvailable() false after restore, want true")
	}
	if !r2.IsManifestAvailable("alpine", "bbbb") {
		t.Error("IsManifestAvailable() false after restore, want true")
	}
	digest, err := r2.GetTag("alpine", "3.11")
	if err != nil || digest != "bbbb" {
		t.Errorf("GetTag() = (%q, %v), want (bbbb, nil)", digest, err)
	}
}

func TestRestoreThenReplaySuffix(t *testing.T) {
	log := sampleLog()

	r1 := New(nil)
	applyAll(t, r1, log[:3])
	data, _, err := r1.ExportState()
	if err != nil {
		t.Fatalf("ExportState() error = %v", err)
	}

	r2 := New(nil)
	if err := r2.RestoreState(data); err != nil {
		t.Fatalf("RestoreState() error = %v", err)
	}
	for i, e := range log[3:] {
		if _, err := r2.Apply(uint64(4+i), e); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if r2.LastApplied() != r1.LastApplied()+uint64(len(log)-3) {
		t.Errorf("LastApplied() = %d, want %d", r2.LastApplied(), len(log))
	}
	digest, err := r2.GetTag("alpine", "3.11")
	if err != nil || digest != "bbbb" {
		t.Errorf("GetTag() after replay = (%q, %v), want (bbbb, nil)", digest, err)
	}
}
