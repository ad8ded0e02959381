// Package audit implements the resolver/auditor of spec.md §4.H: a
// revdep scan (do any installed binaries reference a shared library that
// no longer resolves?), a depclean scan (which installed packages are
// orphaned?), a handful of best-effort report-only scans, and the two
// repair actions (fix-broken, clean-orphans) that act on their findings.
package audit

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg/internal/remove"
	"github.com/porgproject/porg/internal/sandbox"
)

// RecipeLocator finds the recipe file for a package name, so fix-broken
// can hand it to the Builder without the Auditor needing to know how the
// ports tree is laid out.
type RecipeLocator interface {
	Locate(name string) (path string, ok bool)
}

// Report is the stable JSON schema spec.md §6 names for `porg audit --json`:
// `{generated_at, host, kernel, broken_libs:[{pkg,file,ldd}],
// broken_symlinks:[{path}], orphans:[{pkg,prefix}], pkgconf_la,
// python_orphans, security}`. OrphanFiles is an addition beyond that
// schema (see scanOrphanFiles), kept since porg has no fixed per-file
// manifest and the approximate check is still useful best-effort output.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Host        string    `json:"host"`
	Kernel      string    `json:"kernel"`

	BrokenLibs     []BrokenLib     `json:"broken_libs"`
	BrokenSymlinks []BrokenSymlink `json:"broken_symlinks,omitempty"`
	Orphans        []OrphanPkg     `json:"orphans"`
	PkgconfLA      []string        `json:"pkgconf_la,omitempty"`
	PythonOrphans  []string        `json:"python_orphans,omitempty"`
	Security       []string        `json:"security,omitempty"`

	OrphanFiles []string `json:"orphan_files,omitempty"`
}

// reportHeader fills in generated_at/host/kernel, the three fields every
// scan shares regardless of what it found. Kernel is read straight from
// /proc/sys/kernel/osrelease rather than uname(2), since that's a plain
// file read with no platform-specific struct layout to get wrong.
func reportHeader() (time.Time, string, string) {
	host, _ := os.Hostname()
	kernel := ""
	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		kernel = strings.TrimSpace(string(b))
	}
	return time.Now().UTC(), host, kernel
}

// Options bounds a repair action.
type Options struct {
	DryRun bool
	Jobs   int // parallelism bound; <=0 means 1 (serial)
}

// Auditor runs the scans and repair actions above.
type Auditor struct {
	DB      *db.DB
	Graph   *depgraph.Graph
	Builder *sandbox.Builder
	Remover *remove.Remover
	Recipes RecipeLocator
	Log     *plog.Session

	// ScanRoots are additional filesystem roots (besides every installed
	// record's own prefix) the best-effort scans walk looking for broken
	// symlinks, stray .la files, and orphan files.
	ScanRoots []string
}

// Audit runs every scan and assembles the report.
func (a *Auditor) Audit(ctx context.Context) (*Report, error) {
	broken, err := a.RevdepScan(ctx)
	if err != nil {
		return nil, err
	}
	orphans, err := a.DepcleanScan()
	if err != nil {
		return nil, err
	}

	rep := &Report{BrokenLibs: broken, Orphans: a.OrphanDetails(orphans)}
	rep.GeneratedAt, rep.Host, rep.Kernel = reportHeader()
	rep.BrokenSymlinks = a.scanBrokenSymlinks()
	rep.PkgconfLA = a.scanLAFiles()
	rep.PythonOrphans = a.scanPythonOrphans()
	rep.Security = a.scanSecurity()
	rep.OrphanFiles = a.scanOrphanFiles()
	return rep, nil
}
