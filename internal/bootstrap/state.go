package bootstrap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/porgproject/porg/internal/perr"
)

// Status is a phase's lifecycle state.
type Status string

const (
	StatusBuilding Status = "building"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// phaseState is the one-JSON-file-per-phase record of spec.md §4.J.
type phaseState struct {
	Name    string    `json:"name"`
	Status  Status    `json:"status"`
	Extra   string    `json:"extra,omitempty"` // artifact path on success (no log path is recorded), failure reason on failure
	Updated time.Time `json:"ts"`
}

func phaseStatePath(dir, name string) string {
	return filepath.Join(dir, "phase-"+name+".json")
}

func loadPhaseState(dir, name string) (*phaseState, error) {
	b, err := os.ReadFile(phaseStatePath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.IOError.Newf("reading phase state for %s: %v", name, err)
	}
	var st phaseState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, perr.DBCorrupt.Newf("phase state for %s is corrupt: %v", name, err)
	}
	return &st, nil
}

func savePhaseState(dir string, st *phaseState) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.IOError.Newf("creating bootstrap state dir %s: %v", dir, err)
	}
	st.Updated = time.Now().UTC()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(phaseStatePath(dir, st.Name), b, 0o644); err != nil {
		return perr.IOError.Newf("persisting phase state for %s: %v", st.Name, err)
	}
	return nil
}
