package audit

import (
	"os"
	"path/filepath"
	"strings"
)

// OrphanPkg names one installed package with zero reverse dependents,
// per spec.md §6's `orphans:[{pkg,prefix}]` audit report schema.
type OrphanPkg struct {
	Pkg    string `json:"pkg"`
	Prefix string `json:"prefix"`
}

// BrokenSymlink names one dangling symlink found under a scanned root,
// per spec.md §6's `broken_symlinks:[{path}]` audit report schema.
type BrokenSymlink struct {
	Path string `json:"path"`
}

// DepcleanScan returns packages with zero reverse dependents outside a
// critical prefix — a thin wrapper over the same traversal the recursive
// remover uses, so "what's orphaned" never diverges between `porg audit`
// and `porg remove --recursive`.
func (a *Auditor) DepcleanScan() ([]string, error) {
	return a.Graph.Orphans()
}

// OrphanDetails resolves each orphaned package name to its installed
// prefix, for the structured {pkg,prefix} report entries.
func (a *Auditor) OrphanDetails(names []string) []OrphanPkg {
	prefixes := map[string]string{}
	if records, err := a.DB.List(); err == nil {
		for _, rec := range records {
			prefixes[rec.Name] = rec.Prefix
		}
	}
	out := make([]OrphanPkg, 0, len(names))
	for _, n := range names {
		out = append(out, OrphanPkg{Pkg: n, Prefix: prefixes[n]})
	}
	return out
}

// scanBrokenSymlinks walks ScanRoots (plus every installed record's
// prefix) for symlinks whose target does not resolve. Best-effort and
// report-only, per spec.md §4.H.
func (a *Auditor) scanBrokenSymlinks() []BrokenSymlink {
	var broken []BrokenSymlink
	a.walkRoots(func(path string, info os.FileInfo) {
		if info.Mode()&os.ModeSymlink == 0 {
			return
		}
		if _, err := os.Stat(path); err != nil {
			broken = append(broken, BrokenSymlink{Path: path})
		}
	})
	return broken
}

// scanLAFiles reports leftover libtool archive (.la) files, which
// routinely outlive the library they describe once a package is rebuilt
// without libtool support. Reported under the audit report's pkgconf_la
// field, per spec.md §6.
func (a *Auditor) scanLAFiles() []string {
	var las []string
	a.walkRoots(func(path string, info os.FileInfo) {
		if info.IsDir() {
			return
		}
		if strings.HasSuffix(path, ".la") {
			las = append(las, path)
		}
	})
	return las
}

// scanPythonOrphans reports installed *.egg-info/*.dist-info directories
// whose owning package is no longer registered in the installed-package
// database, the Python-packaging analogue of scanOrphanFiles.
func (a *Auditor) scanPythonOrphans() []string {
	records, err := a.DB.List()
	if err != nil {
		return nil
	}
	installed := make(map[string]bool, len(records))
	for _, rec := range records {
		installed[rec.Name] = true
	}

	var orphans []string
	a.walkRoots(func(path string, info os.FileInfo) {
		if !info.IsDir() {
			return
		}
		base := filepath.Base(path)
		if !strings.HasSuffix(base, ".egg-info") && !strings.HasSuffix(base, ".dist-info") {
			return
		}
		pkg := pythonDistName(base)
		if !installed[pkg] {
			orphans = append(orphans, path)
		}
	})
	return orphans
}

// pythonDistName strips a Python distribution directory's version and
// extension suffix, e.g. "requests-2.31.0.dist-info" -> "requests".
func pythonDistName(base string) string {
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".egg-info"), ".dist-info")
	if i := strings.IndexByte(base, '-'); i >= 0 {
		return base[:i]
	}
	return base
}

// scanSecurity reports installed packages whose recipe flagged a known
// security advisory at install time (recorded onto the InstalledRecord's
// Metadata under "security", the same carry-it-on-the-record approach
// hookMetadata uses for pre/post-remove hooks, since the originating
// recipe file may no longer exist by audit time).
func (a *Auditor) scanSecurity() []string {
	records, err := a.DB.List()
	if err != nil {
		return nil
	}
	var flagged []string
	for _, rec := range records {
		if advisory := rec.Metadata["security"]; advisory != "" {
			flagged = append(flagged, rec.Name+": "+advisory)
		}
	}
	return flagged
}

// scanOrphanFiles reports regular files under ScanRoots that fall outside
// every installed record's prefix tree — i.e. files no recipe's install
// phase could have put there. This is necessarily approximate: porg has
// no per-file manifest (spec.md's InstalledRecord tracks packages, not
// files), so this only flags files under ScanRoots that aren't beneath
// any known prefix at all.
func (a *Auditor) scanOrphanFiles() []string {
	records, err := a.DB.List()
	if err != nil {
		return nil
	}
	prefixes := make([]string, 0, len(records))
	for _, rec := range records {
		prefixes = append(prefixes, filepath.Clean(rec.Prefix))
	}

	var orphans []string
	for _, root := range a.ScanRoots {
		filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return nil
			}
			for _, p := range prefixes {
				if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
					return nil
				}
			}
			orphans = append(orphans, path)
			return nil
		})
	}
	return orphans
}

// walkRoots applies fn to every entry under ScanRoots plus every installed
// record's prefix, swallowing Walk errors (a missing directory is not a
// scan failure).
func (a *Auditor) walkRoots(fn func(path string, info os.FileInfo)) {
	roots := append([]string{}, a.ScanRoots...)
	if records, err := a.DB.List(); err == nil {
		for _, rec := range records {
			roots = append(roots, rec.Prefix)
		}
	}
	for _, root := range roots {
		filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil {
				return nil
			}
			fn(path, info)
			return nil
		})
	}
}
