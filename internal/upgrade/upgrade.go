// Package upgrade implements the upgrade orchestrator of spec.md §4.I:
// plan a rebuild order over a scope ("world" or a single package), then
// execute it package by package — build, swap out the old version, swap
// in the new one — persisting resumable progress as it goes.
package upgrade

import (
	"context"
	"fmt"

	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg/internal/remove"
	"github.com/porgproject/porg/internal/sandbox"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// RecipeLocator finds the recipe file backing a package name.
type RecipeLocator interface {
	Locate(name string) (path string, ok bool)
}

// Options controls one Execute run.
type Options struct {
	Resume       bool
	Force        bool // downgrades hook failures to warnings, passed through to Builder/Remover
	Parallel     int  // batch width; <=1 means fully serial, in plan order
	ExpandToRoot bool
	AutoYes      bool
}

// Upgrader drives upgrade planning and execution.
type Upgrader struct {
	DB      *db.DB
	Graph   *depgraph.Graph
	Builder *sandbox.Builder
	Remover *remove.Remover
	Recipes RecipeLocator
	Log     *plog.Session

	stateDir string
}

// New constructs an Upgrader. stateDir holds the persisted SessionState
// file consumed by --resume.
func New(database *db.DB, graph *depgraph.Graph, builder *sandbox.Builder, remover *remove.Remover, recipes RecipeLocator, log *plog.Session, stateDir string) *Upgrader {
	return &Upgrader{
		DB: database, Graph: graph, Builder: builder, Remover: remover,
		Recipes: recipes, Log: log, stateDir: stateDir,
	}
}

// Plan computes the upgrade plan for scope without executing anything.
func (u *Upgrader) Plan(scope string) (*depgraph.UpgradePlanResult, error) {
	return u.Graph.UpgradePlan(scope)
}

// Execute runs the plan for scope to completion, or until a package fails
// (at which point SessionState is persisted and a non-zero-worthy error is
// returned). With opts.Resume, a previously persisted SessionState for the
// same scope resumes from the package it last failed on rather than
// restarting the plan from the beginning.
func (u *Upgrader) Execute(ctx context.Context, scope string, opts Options) error {
	plan, err := u.Graph.UpgradePlan(scope)
	if err != nil {
		return err
	}
	u.logf("upgrade plan for %s: %d candidate(s), %d need rebuild", scope, len(plan.UpgradeOrder), len(plan.NeedsRebuild))

	startIdx := 0
	if opts.Resume {
		st, err := loadSessionState(u.stateDir)
		if err != nil {
			return err
		}
		if st != nil && st.Scope == scope {
			startIdx = st.PlanIndex
			u.logf("resuming upgrade of %s at %s (previously failed: %s)", scope, st.CurrentPackage, st.FailureReason)
		}
	}

	pending := plan.NeedsRebuild[startIdx:]
	if opts.Parallel > 1 {
		return u.executeBatched(ctx, scope, startIdx, pending, opts)
	}
	return u.executeSerial(ctx, scope, startIdx, pending, opts)
}

func (u *Upgrader) executeSerial(ctx context.Context, scope string, startIdx int, pending []string, opts Options) error {
	for i, name := range pending {
		if err := u.executeOne(ctx, name, opts); err != nil {
			_ = (&sessionState{Scope: scope, PlanIndex: startIdx + i, CurrentPackage: name, FailureReason: err.Error()}).save(u.stateDir)
			return perr.BuildFailed.Newf("upgrading %s: %v", name, err)
		}
	}
	return clearSessionState(u.stateDir)
}

// executeBatched partitions pending into dependency-respecting batches
// (no package in a batch depends on another package in the same batch),
// builds each batch's packages concurrently up to opts.Parallel, then
// serializes the swap (remove old, expand new, register) for the whole
// batch in plan order, per spec.md §4.I's parallelism note.
func (u *Upgrader) executeBatched(ctx context.Context, scope string, startIdx int, pending []string, opts Options) error {
	batches := partitionBatches(pending, u.Graph)
	idx := startIdx
	for _, batch := range batches {
		artifacts := make(map[string]string, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallel)

		results := make([]string, len(batch))
		for i, name := range batch {
			i, name := i, name
			g.Go(func() error {
				path, ok := u.Recipes.Locate(name)
				if !ok {
					return perr.MissingRecipe.Newf("no recipe found for %s", name)
				}
				res, err := u.Builder.Build(gctx, path, sandbox.Options{Resume: opts.Resume, Force: opts.Force, DeferFinalize: true})
				if err != nil {
					return fmt.Errorf("building %s: %w", name, err)
				}
				results[i] = res.ArtifactPath
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			_ = (&sessionState{Scope: scope, PlanIndex: idx, CurrentPackage: batch[0], FailureReason: err.Error()}).save(u.stateDir)
			return perr.BuildFailed.Newf("upgrade batch failed: %v", err)
		}
		for i, name := range batch {
			artifacts[name] = results[i]
		}

		for _, name := range batch {
			if err := u.swap(ctx, name, artifacts[name], opts); err != nil {
				_ = (&sessionState{Scope: scope, PlanIndex: idx, CurrentPackage: name, FailureReason: err.Error()}).save(u.stateDir)
				return perr.BuildFailed.Newf("swapping in %s: %v", name, err)
			}
			idx++
		}
	}
	return clearSessionState(u.stateDir)
}

// executeOne runs the serial steps of spec.md §4.I for one package:
// build the new artifact, remove the old version, expand the new one to
// root, register it.
func (u *Upgrader) executeOne(ctx context.Context, name string, opts Options) error {
	path, ok := u.Recipes.Locate(name)
	if !ok {
		return perr.MissingRecipe.Newf("no recipe found for %s", name)
	}

	res, err := u.Builder.Build(ctx, path, sandbox.Options{Resume: opts.Resume, Force: opts.Force, DeferFinalize: true})
	if err != nil {
		return fmt.Errorf("building %s: %w", name, err)
	}

	return u.swap(ctx, name, res.ArtifactPath, opts)
}

// swap removes the currently installed version of name (if any), then
// hands artifactPath to Builder.Finalize to expand it over root and
// register the new InstalledRecord.
func (u *Upgrader) swap(ctx context.Context, name, artifactPath string, opts Options) error {
	if cur, err := u.DB.Get(name); err == nil {
		if _, err := u.Remover.Remove(ctx, cur.Key(), remove.Options{Force: true}); err != nil {
			return fmt.Errorf("removing previous version of %s: %w", name, err)
		}
	} else if !xerrors.Is(err, perr.NotFound) {
		return err
	}

	path, ok := u.Recipes.Locate(name)
	if !ok {
		return perr.MissingRecipe.Newf("no recipe found for %s", name)
	}
	_, err := u.Builder.Finalize(ctx, path, artifactPath, sandbox.Options{
		ExpandToRoot: opts.ExpandToRoot, AutoYes: opts.AutoYes,
	})
	return err
}

func (u *Upgrader) logf(format string, args ...interface{}) {
	if u.Log != nil {
		u.Log.Infof(format, args...)
	}
}
