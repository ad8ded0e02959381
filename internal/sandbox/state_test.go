package sandbox

import "testing"

func TestStateSaveLoadAdvanceClear(t *testing.T) {
	dir := t.TempDir()
	const name = "hello-2.12"

	if st, err := loadState(dir, name); err != nil || st != nil {
		t.Fatalf("loadState on empty dir = %v, %v, want nil, nil", st, err)
	}

	st := &State{SessionID: "s1", Recipe: "hello", Version: "2.12"}
	if err := st.advance(dir, name, PhaseExtract); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadState(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.Phase != PhaseExtract {
		t.Fatalf("loaded = %+v, want Phase=%s", loaded, PhaseExtract)
	}

	if err := clearState(dir, name); err != nil {
		t.Fatal(err)
	}
	if st, err := loadState(dir, name); err != nil || st != nil {
		t.Fatalf("loadState after clear = %v, %v, want nil, nil", st, err)
	}
}

func TestPhaseOrderResumesAfterLastCompleted(t *testing.T) {
	if indexOf(PhaseDownload) <= indexOf(PhaseParse) {
		t.Errorf("download should come after parse in phase order")
	}
	if indexOf(PhasePackage) <= indexOf(PhaseStrip) {
		t.Errorf("package should come after strip in phase order")
	}
	if indexOf(Phase("not-a-real-phase")) != -1 {
		t.Errorf("unknown phase should report -1")
	}
}
