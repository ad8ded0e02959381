package bootstrap

import "testing"

func TestPhaseStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if st, err := loadPhaseState(dir, "glibc"); err != nil || st != nil {
		t.Fatalf("loadPhaseState on empty dir = %v, %v; want nil, nil", st, err)
	}

	if err := savePhaseState(dir, &phaseState{Name: "glibc", Status: StatusBuilding}); err != nil {
		t.Fatal(err)
	}
	st, err := loadPhaseState(dir, "glibc")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusBuilding {
		t.Errorf("Status = %s, want building", st.Status)
	}

	if err := savePhaseState(dir, &phaseState{Name: "glibc", Status: StatusSuccess, Extra: "/cache/glibc-2.38.tar.zst"}); err != nil {
		t.Fatal(err)
	}
	st, err = loadPhaseState(dir, "glibc")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusSuccess || st.Extra != "/cache/glibc-2.38.tar.zst" {
		t.Errorf("st = %+v, want success with artifact path", st)
	}
}

func TestDirLockExcludesConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	first := newDirLock(dir)
	if err := first.acquire(5, 0); err != nil {
		t.Fatal(err)
	}
	defer first.release()

	second := newDirLock(dir)
	if err := second.acquire(3, 0); err == nil {
		t.Fatal("expected second lock acquisition to fail while first is held")
	}

	first.release()
	third := newDirLock(dir)
	if err := third.acquire(5, 0); err != nil {
		t.Fatalf("expected lock to be acquirable after release: %v", err)
	}
	third.release()
}
