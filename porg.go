// Package porg contains the value types shared by every component of the
// package manager: recipes, installed records, artifacts and the small
// set of constants (critical prefixes, hook stages) that more than one
// component needs to agree on.
package porg

import "time"

// Stage identifies which root a recipe's install step is staged into.
type Stage string

const (
	StageNormal    Stage = "normal"
	StageBootstrap Stage = "bootstrap"
	StageToolchain Stage = "toolchain"
)

// SourceScheme is the URL scheme of a Source entry.
type SourceScheme string

const (
	SchemeHTTP  SourceScheme = "http"
	SchemeHTTPS SourceScheme = "https"
	SchemeFTP   SourceScheme = "ftp"
	SchemeFile  SourceScheme = "file"
	SchemeVCS   SourceScheme = "vcs"
)

// Source is one entry in a recipe's ordered source list.
type Source struct {
	URL          string
	Checksum     string // sha256, hex-encoded; empty if absent
	SignatureURL string
}

// HookStage names a point in the build/install/remove lifecycle where a
// recipe (or a global /etc/porg/hooks/<stage>/* script) may run commands.
type HookStage string

const (
	HookPreDownload    HookStage = "pre-download"
	HookPostDownload   HookStage = "post-download"
	HookPrePatch       HookStage = "pre-patch"
	HookPostPatch      HookStage = "post-patch"
	HookPreBuild       HookStage = "pre-build"
	HookPostBuild      HookStage = "post-build"
	HookPostInstall    HookStage = "post-install"
	HookPostPackage    HookStage = "post-package"
	HookPreExpandRoot  HookStage = "pre-expand-root"
	HookPostExpandRoot HookStage = "post-expand-root"
	HookPreRemove      HookStage = "pre-remove"
	HookPostRemove     HookStage = "post-remove"
)

// Recipe is an immutable value parsed from a declarative recipe file,
// keyed by (Name, Version). It is read-only for the duration of a run.
type Recipe struct {
	Name    string
	Version string
	Stage   Stage

	Sources []Source
	Patches []string

	Build   string
	Install string

	DepsBuild    []string
	DepsRuntime  []string
	DepsOptional []string

	Hooks map[HookStage][]string

	Prefix        string
	ExpandToRoot  bool

	// Dir is the directory the recipe file was loaded from; patches and
	// other relative references resolve against it.
	Dir string

	// Extra carries every key the loader didn't recognize: scalar values
	// verbatim, structured values as their YAML encoding. A recipe is
	// never rejected for having unknown keys.
	Extra map[string]string
}

// FullName is the InstalledRecord/artifact key for this recipe,
// "{name}-{version}".
func (r *Recipe) FullName() string {
	return r.Name + "-" + r.Version
}

// AllDependencies returns build, runtime and optional dependencies
// combined. The resolver's ordering (depgraph.Resolve) reads DepsBuild
// and DepsRuntime directly and does not use optional dependencies.
func (r *Recipe) AllDependencies() []string {
	out := make([]string, 0, len(r.DepsBuild)+len(r.DepsRuntime)+len(r.DepsOptional))
	out = append(out, r.DepsBuild...)
	out = append(out, r.DepsRuntime...)
	out = append(out, r.DepsOptional...)
	return out
}

// InstalledRecord is one entry in the installed-package database.
type InstalledRecord struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Prefix       string            `json:"prefix"`
	InstalledAt  time.Time         `json:"installed_at"`
	Dependencies []string          `json:"dependencies"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Key is the database key for this record, "{name}-{version}".
func (r *InstalledRecord) Key() string {
	return r.Name + "-" + r.Version
}

// ArtifactFormat is the compression format an artifact tarball was written
// with.
type ArtifactFormat string

const (
	FormatZstd ArtifactFormat = "zst"
	FormatXZ   ArtifactFormat = "xz"
	FormatGzip ArtifactFormat = "gz"
	FormatTar  ArtifactFormat = "tar"
)

// ArtifactPath returns the conventional file name for a package's
// artifact given its compression format, e.g. "hello-2.12.tar.zst".
func ArtifactPath(name, version string, format ArtifactFormat) string {
	if format == FormatTar {
		return name + "-" + version + ".tar"
	}
	return name + "-" + version + ".tar." + string(format)
}

// CriticalPrefixes are filesystem roots that must never be the sole
// target of an orphan sweep, a forced removal, or (when the overlay would
// otherwise be empty) an expand-to-root overlay.
var CriticalPrefixes = map[string]bool{
	"/":      true,
	"/usr":   true,
	"/bin":   true,
	"/sbin":  true,
	"/lib":   true,
	"/lib64": true,
	"/etc":   true,
}

// IsCriticalPrefix reports whether prefix is one of CriticalPrefixes,
// after cleaning it to a canonical absolute form.
func IsCriticalPrefix(prefix string) bool {
	return CriticalPrefixes[cleanPrefix(prefix)]
}

func cleanPrefix(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
