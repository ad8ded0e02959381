package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/porgproject/porg/internal/config"
	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/fetch"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg/internal/recipe"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

// Options controls one Build invocation.
type Options struct {
	Resume       bool
	Force        bool // downgrades hook failures to warnings
	ExpandToRoot bool // explicit confirmation / auto-yes for the final overlay step
	AutoYes      bool

	// RootOverride redirects the expand-to-root overlay target away from
	// "/", used by the bootstrap orchestrator to expand a toolchain phase
	// into a staging root (spec.md §4.J's "redirected to the bootstrap
	// root per stage") instead of the live system.
	RootOverride string

	// DeferFinalize stops Build after packaging, skipping both the
	// expand-to-root step and DB registration: the caller gets the
	// artifact back and finishes the job itself via Finalize, once it has
	// done whatever must happen between "new artifact exists" and
	// "new artifact is live" (e.g. the upgrade orchestrator's old-version
	// removal step).
	DeferFinalize bool
}

// BuildResult is what Build returns on success: the artifact it packaged
// and, unless opts.DeferFinalize was set, the InstalledRecord it
// registered.
type BuildResult struct {
	ArtifactPath string
	Record       *porg.InstalledRecord
}

// Builder drives the parse -> ... -> package state machine of spec.md
// §4.F for one recipe at a time.
type Builder struct {
	Config  *config.Config
	Log     *plog.Session
	Fetcher *fetch.Fetcher
	DB      *db.DB
	Graph   *depgraph.Graph

	stateDir string
}

// New constructs a Builder. stateDir holds persisted SessionState files
// and defaults to cfg.WorkDir/state.
func New(cfg *config.Config, log *plog.Session, fetcher *fetch.Fetcher, database *db.DB, graph *depgraph.Graph) *Builder {
	return &Builder{
		Config:   cfg,
		Log:      log,
		Fetcher:  fetcher,
		DB:       database,
		Graph:    graph,
		stateDir: filepath.Join(cfg.WorkDir, "state"),
	}
}

// Build runs the full build/install/package pipeline for the recipe at
// recipePath and returns the artifact and, unless opts.DeferFinalize was
// set, the InstalledRecord it registered.
func (b *Builder) Build(ctx context.Context, recipePath string, opts Options) (*BuildResult, error) {
	sessionKey := filepath.Base(filepath.Dir(recipePath))
	if sessionKey == "." || sessionKey == "/" {
		sessionKey = filepath.Base(recipePath)
	}

	st, err := loadState(b.stateDir, sessionKey)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &State{SessionID: sessionKey, Phase: ""}
	} else if !opts.Resume {
		st = &State{SessionID: sessionKey, Phase: ""}
	}

	startIdx := 0
	if st.Phase != "" {
		startIdx = indexOf(st.Phase) + 1
	}

	var r *porg.Recipe

	run := func(p Phase, fn func() error) error {
		if indexOf(p) < startIdx {
			return nil
		}
		if err := fn(); err != nil {
			return err
		}
		return st.advance(b.stateDir, sessionKey, p)
	}

	if err := run(PhaseParse, func() error {
		var err error
		r, err = recipe.Load(recipePath)
		if err != nil {
			return err
		}
		st.Recipe, st.Version = r.Name, r.Version
		return nil
	}); err != nil {
		return nil, err
	}
	if r == nil {
		// Resuming past parse: re-parse anyway, state bytes don't carry the
		// full recipe.
		var err error
		r, err = recipe.Load(recipePath)
		if err != nil {
			return nil, err
		}
	}
	fullName := r.FullName()

	if err := run(PhaseResolveDeps, func() error {
		if b.Graph == nil {
			return nil
		}
		missing, err := b.Graph.Missing(r.Name)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return perr.MissingRecipe.Newf("%s has unresolved build dependencies: %v", r.Name, missing)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := run(PhaseDownload, func() error {
		if len(r.Sources) == 0 {
			return nil
		}
		path, err := b.Fetcher.Fetch(ctx, r.Sources)
		if err != nil {
			return err
		}
		st.SourcePath = path
		return nil
	}); err != nil {
		return nil, err
	}

	if err := run(PhaseVerify, func() error { return nil }); err != nil {
		// Verification is folded into Fetch (checksum/signature checked per
		// source before it's accepted); this phase exists for the resume
		// contract spec.md §4.F names explicitly.
		return nil, err
	}

	srcDir := filepath.Join(b.Config.WorkDir, "src", fullName)
	if err := run(PhaseExtract, func() error {
		if st.SourcePath == "" {
			return os.MkdirAll(srcDir, 0o755)
		}
		if _, err := os.Stat(srcDir); err == nil {
			return nil
		}
		if err := extractSource(ctx, st.SourcePath, srcDir); err != nil {
			return err
		}
		st.SourceDir = srcDir
		return nil
	}); err != nil {
		return nil, err
	}

	if err := run(PhasePatch, func() error {
		return applyPatches(ctx, srcDir, resolvedPatches(r))
	}); err != nil {
		return nil, err
	}

	if err := run(PhasePreBuildHooks, func() error {
		return runHooks(ctx, b.Log, string(porg.HookPreBuild), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPreBuild], opts.Force)
	}); err != nil {
		return nil, err
	}

	sandboxDest := filepath.Join(b.Config.WorkDir, "sandbox-dest", fullName)
	if err := run(PhaseBuild, func() error {
		if err := os.MkdirAll(sandboxDest, 0o755); err != nil {
			return perr.IOError.Newf("creating sandbox dest dir")
		}
		return b.runIsolated(ctx, r, srcDir, sandboxDest, r.Build)
	}); err != nil {
		return nil, err
	}

	if err := run(PhaseInstall, func() error {
		return b.runIsolated(ctx, r, srcDir, sandboxDest, r.Install)
	}); err != nil {
		return nil, err
	}

	if err := run(PhasePostBuildHooks, func() error {
		return runHooks(ctx, b.Log, string(porg.HookPostBuild), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPostBuild], opts.Force)
	}); err != nil {
		return nil, err
	}

	stageDir := filepath.Join(b.Config.WorkDir, "stage", fullName)
	if err := run(PhaseMergeStaging, func() error {
		if err := os.MkdirAll(stageDir, 0o755); err != nil {
			return perr.IOError.Newf("creating staging dir")
		}
		if err := mergeInto(sandboxDest, stageDir); err != nil {
			return err
		}
		st.StageDir = stageDir
		return nil
	}); err != nil {
		return nil, err
	}

	if err := run(PhasePostInstallHook, func() error {
		return runHooks(ctx, b.Log, string(porg.HookPostInstall), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPostInstall], opts.Force)
	}); err != nil {
		return nil, err
	}

	if err := run(PhaseStrip, func() error {
		if !b.Config.StripBinaries {
			return nil
		}
		return stripTree(ctx, stageDir)
	}); err != nil {
		return nil, err
	}

	artifactPath := ""
	if err := run(PhasePackage, func() error {
		tarPath := filepath.Join(b.Config.CacheDir, fullName+".tar")
		if err := os.MkdirAll(filepath.Dir(tarPath), 0o755); err != nil {
			return perr.IOError.Newf("creating artifact cache dir")
		}
		if err := tarDir(stageDir, tarPath); err != nil {
			return err
		}
		format := porg.ArtifactFormat(b.Config.PackageFormat)
		out, err := compressArtifact(tarPath, format)
		if err != nil {
			return err
		}
		artifactPath = out
		st.Artifact = out
		return nil
	}); err != nil {
		return nil, err
	}
	if artifactPath == "" {
		artifactPath = st.Artifact
	}

	if err := run(PhasePostPackageHook, func() error {
		return runHooks(ctx, b.Log, string(porg.HookPostPackage), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPostPackage], opts.Force)
	}); err != nil {
		return nil, err
	}

	if opts.DeferFinalize {
		_ = st.advance(b.stateDir, sessionKey, PhasePostPackageHook)
		if err := clearState(b.stateDir, sessionKey); err != nil {
			b.logWarn("clearing session state for %s: %v", fullName, err)
		}
		return &BuildResult{ArtifactPath: artifactPath}, nil
	}

	if err := run(PhaseExpandToRoot, func() error {
		if !r.ExpandToRoot || !opts.ExpandToRoot {
			return nil
		}
		if !opts.AutoYes {
			return perr.InvalidInput.Newf("expand-to-root requires explicit confirmation (--yes)")
		}
		return b.expandToRoot(ctx, r, artifactPath, opts.RootOverride)
	}); err != nil {
		return nil, err
	}

	rec := porg.InstalledRecord{
		Name:         r.Name,
		Version:      r.Version,
		Prefix:       r.Prefix,
		InstalledAt:  time.Now().UTC(),
		Dependencies: r.DepsRuntime,
		Metadata:     hookMetadata(r),
	}
	if err := b.DB.RegisterRecord(rec); err != nil {
		return nil, err
	}

	_ = st.advance(b.stateDir, sessionKey, PhaseDone)
	if err := clearState(b.stateDir, sessionKey); err != nil {
		b.logWarn("clearing session state for %s: %v", fullName, err)
	}

	return &BuildResult{ArtifactPath: artifactPath, Record: &rec}, nil
}

// Finalize completes a Build that was run with opts.DeferFinalize: it
// re-loads the recipe (Build never mutated it), optionally expands
// artifactPath over "/", and registers the InstalledRecord. Called once
// the caller has done whatever must happen between "artifact built" and
// "artifact live" (e.g. removing the previous version first).
func (b *Builder) Finalize(ctx context.Context, recipePath, artifactPath string, opts Options) (*porg.InstalledRecord, error) {
	r, err := recipe.Load(recipePath)
	if err != nil {
		return nil, err
	}

	if r.ExpandToRoot && opts.ExpandToRoot {
		if !opts.AutoYes {
			return nil, perr.InvalidInput.Newf("expand-to-root requires explicit confirmation (--yes)")
		}
		if err := b.expandToRoot(ctx, r, artifactPath, opts.RootOverride); err != nil {
			return nil, err
		}
	}

	rec := porg.InstalledRecord{
		Name:         r.Name,
		Version:      r.Version,
		Prefix:       r.Prefix,
		InstalledAt:  time.Now().UTC(),
		Dependencies: r.DepsRuntime,
		Metadata:     hookMetadata(r),
	}
	if err := b.DB.RegisterRecord(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Builder) runIsolated(ctx context.Context, r *porg.Recipe, srcDir, destDir, command string) error {
	if command == "" {
		return nil
	}
	spec := Spec{
		Name: r.Name, Version: r.Version, Prefix: r.Prefix,
		SourceDir: srcDir, DestDir: destDir,
		Jobs:    b.Config.Jobs,
		Command: command,
	}

	err := (nsIsolator{}).Run(ctx, spec, os.Stdout, os.Stderr)
	if err != nil && isSandboxUnavail(err) {
		b.logWarn("namespace sandbox unavailable, falling back to chroot (requires privilege): %v", err)
		err = (chrootIsolator{}).Run(ctx, spec, os.Stdout, os.Stderr)
	}
	return err
}

func isSandboxUnavail(err error) bool {
	return err != nil && xerrors.Is(err, perr.SandboxUnavail)
}

func (b *Builder) logWarn(format string, args ...interface{}) {
	if b.Log != nil {
		b.Log.Warnf(format, args...)
	}
}

// expandToRoot extracts artifactPath over root (defaulting to "/", or
// rootOverride when set, per spec.md §4.J's bootstrap staging redirect),
// refusing only when the overlay target is "/", the recipe's prefix is a
// critical prefix, and the artifact is near-empty (under 1 KiB). Other
// near-empty artifacts are expanded with a warning.
func (b *Builder) expandToRoot(ctx context.Context, r *porg.Recipe, artifactPath, rootOverride string) error {
	root := "/"
	if rootOverride != "" {
		root = rootOverride
	}

	if err := runHooks(ctx, b.Log, string(porg.HookPreExpandRoot), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPreExpandRoot], false); err != nil {
		return err
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return perr.IOError.Newf("statting artifact %s", artifactPath)
	}
	if info.Size() < 1024 && root == "/" && porg.IsCriticalPrefix(r.Prefix) {
		return perr.InvalidPrefix.Newf("refusing to expand a near-empty artifact onto critical prefix %s", r.Prefix)
	}
	if info.Size() < 1024 {
		b.logWarn("expanding a near-empty artifact %s", artifactPath)
	}

	if root != "/" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return perr.IOError.Newf("creating bootstrap root %s", root)
		}
	}

	cmd := fmt.Sprintf("tar xf %s -C %s --no-same-owner", shellQuote(artifactPath), shellQuote(root))
	if err := runShell(ctx, cmd); err != nil {
		return perr.ExtractFailed.Newf("expanding %s onto %s: %v", artifactPath, root, err)
	}

	return runHooks(ctx, b.Log, string(porg.HookPostExpandRoot), r.Name, r.Version, r.Prefix, r.Hooks[porg.HookPostExpandRoot], false)
}

// hookMetadata records the recipe's pre-remove/post-remove hook commands,
// and any "security" advisory the recipe carries in its unrecognized-key
// Extra map, onto the InstalledRecord. Both survive only because they're
// stored here: by the time a package is removed or audited its recipe
// file may no longer exist (e.g. after a depclean dropped it).
func hookMetadata(r *porg.Recipe) map[string]string {
	meta := map[string]string{}
	if cmds := r.Hooks[porg.HookPreRemove]; len(cmds) > 0 {
		meta["hooks.pre-remove"] = joinLines(cmds)
	}
	if cmds := r.Hooks[porg.HookPostRemove]; len(cmds) > 0 {
		meta["hooks.post-remove"] = joinLines(cmds)
	}
	if advisory := r.Extra["security"]; advisory != "" {
		meta["security"] = advisory
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func joinLines(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += "\n"
		}
		out += s
	}
	return out
}

func resolvedPatches(r *porg.Recipe) []string {
	out := make([]string, 0, len(r.Patches))
	for _, p := range r.Patches {
		if filepath.IsAbs(p) {
			out = append(out, p)
		} else {
			out = append(out, filepath.Join(r.Dir, p))
		}
	}
	return out
}

func runShell(ctx context.Context, command string) error {
	return runHooks(ctx, nil, "expand-to-root", "", "", "", []string{command}, false)
}
