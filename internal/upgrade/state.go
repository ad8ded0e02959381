package upgrade

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/porgproject/porg/internal/perr"
)

// sessionState is the per-run resume record of spec.md §3's SessionState:
// which package in the plan failed, and why, so --resume can re-attempt
// just that one and continue the remainder of the plan. Persisted with
// the same write-temp-then-rename idiom internal/db and internal/sandbox
// use for their own atomic files.
type sessionState struct {
	Scope          string    `json:"scope"`
	PlanIndex      int       `json:"plan_index"`
	CurrentPackage string    `json:"current_package"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func sessionStatePath(dir string) string {
	return filepath.Join(dir, "upgrade.state.json")
}

func loadSessionState(dir string) (*sessionState, error) {
	b, err := os.ReadFile(sessionStatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.IOError.Newf("reading upgrade session state: %v", err)
	}
	var st sessionState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, perr.DBCorrupt.Newf("upgrade session state is corrupt: %v", err)
	}
	return &st, nil
}

func (st *sessionState) save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.IOError.Newf("creating upgrade state dir %s: %v", dir, err)
	}
	st.UpdatedAt = time.Now()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(sessionStatePath(dir), b, 0o644); err != nil {
		return perr.IOError.Newf("persisting upgrade session state: %v", err)
	}
	return nil
}

func clearSessionState(dir string) error {
	err := os.Remove(sessionStatePath(dir))
	if err != nil && !os.IsNotExist(err) {
		return perr.IOError.Newf("removing upgrade session state: %v", err)
	}
	return nil
}
