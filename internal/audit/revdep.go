package audit

import (
	"context"
	"debug/elf"
	"os"
	"path/filepath"

	"github.com/porgproject/porg/internal/perr"
)

// elfSearchDirs lists the per-prefix directories the revdep scan walks
// looking for ELF binaries, per spec.md §4.H.
var elfSearchDirs = []string{"bin", "sbin", "lib", "lib64", "usr/lib", "usr/bin", "usr/sbin"}

// libSearchPath is consulted to decide whether an imported library
// resolves; it mirrors the teacher's cmd/distri/initrd.go rpath-plus-
// fallback lookup, simplified to the fixed set revdep needs (recipes'
// own rpath handling happens at link time, not here).
func libSearchPath(prefix string) []string {
	return []string{
		filepath.Join(prefix, "lib"),
		filepath.Join(prefix, "usr", "lib"),
		"/usr/lib", "/usr/lib64", "/lib", "/lib64",
	}
}

// BrokenLib names one binary whose dynamic import does not resolve against
// any known library search path, per spec.md §6's
// `broken_libs:[{pkg,file,ldd}]` audit report schema.
type BrokenLib struct {
	Pkg  string `json:"pkg"`
	File string `json:"file"`
	Ldd  string `json:"ldd"` // the imported library name that failed to resolve
}

// RevdepScan walks every installed record's standard directories and
// resolves each ELF binary's imported libraries; any unresolved import
// marks the owning binary broken. Scanning a package stops at its first
// broken binary to bound runtime, per spec.md §4.H.
func (a *Auditor) RevdepScan(ctx context.Context) ([]BrokenLib, error) {
	records, err := a.DB.List()
	if err != nil {
		return nil, err
	}

	var broken []BrokenLib
	for _, rec := range records {
		if ctx.Err() != nil {
			return broken, ctx.Err()
		}
		lib, ok, err := packageResolves(rec.Prefix)
		if err != nil {
			return nil, err
		}
		if !ok {
			broken = append(broken, BrokenLib{Pkg: rec.Name, File: lib.File, Ldd: lib.Ldd})
		}
	}
	return broken, nil
}

// BrokenPkgNames reduces a RevdepScan result to the (deduplicated in
// practice, since the scan reports at most one entry per package) set of
// package names, for callers like FixBroken that rebuild by name.
func BrokenPkgNames(libs []BrokenLib) []string {
	names := make([]string, 0, len(libs))
	for _, l := range libs {
		names = append(names, l.Pkg)
	}
	return names
}

func packageResolves(prefix string) (BrokenLib, bool, error) {
	searchPath := libSearchPath(prefix)
	for _, sub := range elfSearchDirs {
		dir := filepath.Join(prefix, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // directory doesn't exist for this package; not an error
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			elfFile, ok, err := tryOpenELF(path)
			if err != nil {
				return BrokenLib{}, false, perr.IOError.Newf("opening %s: %v", path, err)
			}
			if !ok {
				continue
			}
			missing, resolves, err := binaryResolves(elfFile, searchPath)
			elfFile.Close()
			if err != nil {
				return BrokenLib{}, false, err
			}
			if !resolves {
				return BrokenLib{File: path, Ldd: missing}, false, nil
			}
		}
	}
	return BrokenLib{}, true, nil
}

func tryOpenELF(path string) (*elf.File, bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, false, nil // not an ELF file (or unreadable); not fatal to the scan
	}
	return f, true, nil
}

func binaryResolves(f *elf.File, searchPath []string) (string, bool, error) {
	libs, err := f.ImportedLibraries()
	if err != nil {
		return "", true, nil // no dynamic section; static binary, trivially resolves
	}
	for _, lib := range libs {
		if lib == "ld-linux-x86-64.so.2" || lib == "linux-vdso.so.1" {
			continue
		}
		found := false
		for _, dir := range searchPath {
			if _, err := os.Stat(filepath.Join(dir, lib)); err == nil {
				found = true
				break
			}
		}
		if !found {
			return lib, false, nil
		}
	}
	return "", true, nil
}
