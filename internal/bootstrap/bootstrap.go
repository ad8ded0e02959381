// Package bootstrap implements the bootstrap orchestrator of spec.md
// §4.J: run an ordered list of phases from a manifest, each one a Builder
// invocation redirected into a staging root, with a per-phase status file
// and a process-wide lock serializing concurrent runs.
package bootstrap

import (
	"context"
	"path/filepath"
	"time"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg/internal/sandbox"
)

// RecipeLocator resolves a manifest phase's recipe reference to a file
// path, the same role internal/audit and internal/upgrade's locators
// play.
type RecipeLocator interface {
	Locate(name string) (path string, ok bool)
}

// Orchestrator drives one bootstrap manifest.
type Orchestrator struct {
	Builder  *sandbox.Builder
	Recipes  RecipeLocator
	Log      *plog.Session
	StateDir string

	lockAttempts int
	lockWait     time.Duration
}

// New constructs an Orchestrator. stateDir holds per-phase status files
// and the process-wide lock directory.
func New(builder *sandbox.Builder, recipes RecipeLocator, log *plog.Session, stateDir string) *Orchestrator {
	return &Orchestrator{
		Builder: builder, Recipes: recipes, Log: log, StateDir: stateDir,
		lockAttempts: 50, lockWait: 200 * time.Millisecond,
	}
}

// Run executes every phase of the manifest at manifestPath in order. With
// resume=true, execution begins at the first phase that isn't already
// recorded success.
func (o *Orchestrator) Run(ctx context.Context, manifestPath string, resume bool) error {
	lock := newDirLock(o.StateDir)
	if err := lock.acquire(o.lockAttempts, o.lockWait); err != nil {
		return err
	}
	defer lock.release()

	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	startIdx := 0
	if resume {
		for i, p := range m.Phases {
			st, err := loadPhaseState(o.StateDir, p.Name)
			if err != nil {
				return err
			}
			if st == nil || st.Status != StatusSuccess {
				startIdx = i
				break
			}
			startIdx = i + 1
		}
	}

	for _, p := range m.Phases[startIdx:] {
		if err := o.runPhase(ctx, manifestPath, p); err != nil {
			return perr.BuildFailed.Newf("bootstrap phase %s failed: %v", p.Name, err)
		}
	}
	return nil
}

// RebuildPhase re-runs exactly one named phase unconditionally, ignoring
// any previously recorded status.
func (o *Orchestrator) RebuildPhase(ctx context.Context, manifestPath, name string) error {
	lock := newDirLock(o.StateDir)
	if err := lock.acquire(o.lockAttempts, o.lockWait); err != nil {
		return err
	}
	defer lock.release()

	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	idx := m.indexOf(name)
	if idx < 0 {
		return perr.NotFound.Newf("no phase named %s in manifest", name)
	}
	if err := o.runPhase(ctx, manifestPath, m.Phases[idx]); err != nil {
		return perr.BuildFailed.Newf("bootstrap phase %s failed: %v", name, err)
	}
	return nil
}

// Verify reports the recorded status of every phase in the manifest
// without running anything.
func (o *Orchestrator) Verify(manifestPath string) ([]phaseState, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	out := make([]phaseState, 0, len(m.Phases))
	for _, p := range m.Phases {
		st, err := loadPhaseState(o.StateDir, p.Name)
		if err != nil {
			return nil, err
		}
		if st == nil {
			st = &phaseState{Name: p.Name, Status: ""}
		}
		out = append(out, *st)
	}
	return out, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, manifestPath string, p Phase) error {
	o.logf("bootstrap phase %s: building", p.Name)
	if err := savePhaseState(o.StateDir, &phaseState{Name: p.Name, Status: StatusBuilding}); err != nil {
		return err
	}

	path, ok := o.Recipes.Locate(p.Recipe)
	if !ok {
		_ = savePhaseState(o.StateDir, &phaseState{Name: p.Name, Status: StatusFailed, Extra: "no recipe found for " + p.Recipe})
		return perr.MissingRecipe.Newf("no recipe found for %s", p.Recipe)
	}

	root := p.Stage
	if root != "" && !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(manifestPath), root)
	}

	res, err := o.Builder.Build(ctx, path, sandbox.Options{
		ExpandToRoot: true, AutoYes: true, RootOverride: root,
	})
	if err != nil {
		_ = savePhaseState(o.StateDir, &phaseState{Name: p.Name, Status: StatusFailed, Extra: err.Error()})
		return err
	}

	o.logf("bootstrap phase %s: success (%s)", p.Name, res.ArtifactPath)
	return savePhaseState(o.StateDir, &phaseState{Name: p.Name, Status: StatusSuccess, Extra: res.ArtifactPath})
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.Log != nil {
		o.Log.Infof(format, args...)
	}
}
