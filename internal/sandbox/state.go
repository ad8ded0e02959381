package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/porgproject/porg/internal/perr"
)

// Phase identifies one step of the build state machine. Phases execute
// strictly in this order; State.Phase records the last one that
// completed, so --resume can re-enter right after it.
type Phase string

const (
	PhaseParse           Phase = "parse"
	PhaseResolveDeps     Phase = "resolve_deps"
	PhaseDownload        Phase = "download"
	PhaseVerify          Phase = "verify"
	PhaseExtract         Phase = "extract"
	PhasePatch           Phase = "patch"
	PhasePreBuildHooks   Phase = "pre-build-hooks"
	PhaseBuild           Phase = "build-in-sandbox"
	PhaseInstall         Phase = "install-in-sandbox"
	PhasePostBuildHooks  Phase = "post-build-hooks"
	PhaseMergeStaging    Phase = "merge-into-staging"
	PhasePostInstallHook Phase = "post-install-hooks"
	PhaseStrip           Phase = "strip"
	PhasePackage         Phase = "package"
	PhasePostPackageHook Phase = "post-package-hooks"
	PhaseExpandToRoot    Phase = "expand-to-root"
	PhaseDone            Phase = "done"
)

// order lists every phase in execution order; Build uses it (through
// indexOf) to find where to re-enter.
var order = []Phase{
	PhaseParse, PhaseResolveDeps, PhaseDownload, PhaseVerify, PhaseExtract,
	PhasePatch, PhasePreBuildHooks, PhaseBuild, PhaseInstall,
	PhasePostBuildHooks, PhaseMergeStaging, PhasePostInstallHook,
	PhaseStrip, PhasePackage, PhasePostPackageHook, PhaseExpandToRoot, PhaseDone,
}

func indexOf(p Phase) int {
	for i, x := range order {
		if x == p {
			return i
		}
	}
	return -1
}

// State is the persisted progress of one build session, written after
// every phase completes so a crash or Ctrl-C can be resumed with
// --resume instead of restarting the whole recipe.
type State struct {
	SessionID  string    `json:"session_id"`
	Recipe     string    `json:"recipe"`
	Version    string    `json:"version"`
	Phase      Phase     `json:"phase"`
	SourcePath string    `json:"source_path,omitempty"`
	SourceDir  string    `json:"source_dir,omitempty"`
	DestDir    string    `json:"dest_dir,omitempty"`
	StageDir   string    `json:"stage_dir,omitempty"`
	Artifact   string    `json:"artifact,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func statePath(dir, fullName string) string {
	return filepath.Join(dir, fullName+".state.json")
}

// loadState reads a previously persisted State, if any.
func loadState(dir, fullName string) (*State, error) {
	b, err := os.ReadFile(statePath(dir, fullName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.IOError.Newf("reading session state for %s", fullName)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, perr.DBCorrupt.Newf("session state for %s is corrupt", fullName)
	}
	return &st, nil
}

// save persists st atomically via write-temp-then-rename, the same idiom
// internal/db uses for the installed-package database.
func (st *State) save(dir, fullName string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.IOError.Newf("creating session state dir %s", dir)
	}
	st.UpdatedAt = time.Now()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(statePath(dir, fullName), b, 0o644); err != nil {
		return perr.IOError.Newf("persisting session state for %s", fullName)
	}
	return nil
}

func (st *State) advance(dir, fullName string, p Phase) error {
	st.Phase = p
	return st.save(dir, fullName)
}

func clearState(dir, fullName string) error {
	err := os.Remove(statePath(dir, fullName))
	if err != nil && !os.IsNotExist(err) {
		return perr.IOError.Newf("removing session state for %s", fullName)
	}
	return nil
}
