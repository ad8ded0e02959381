// Package perr enumerates the error taxonomy every component reports
// through. Callers compare with errors.Is; layers wrap with
// xerrors.Errorf("...: %w", err) so the sentinel survives across package
// boundaries while still picking up a frame for logging.
package perr

import "golang.org/x/xerrors"

// Kind is a sentinel error identifying one taxonomy entry. Construct
// concrete errors with Kind.Newf.
type Kind string

func (k Kind) Error() string { return string(k) }

// Is makes errors.Is(err, SomeKind) work even when the Kind has been
// wrapped in a richer error value below.
func (k Kind) Is(target error) bool {
	t, ok := target.(Kind)
	return ok && t == k
}

// Newf builds a wrapped error reporting this kind with additional context.
func (k Kind) Newf(format string, args ...interface{}) error {
	return xerrors.Errorf(format+": %w", append(args, error(k))...)
}

const (
	NotFound         Kind = "not_found"
	InvalidInput     Kind = "invalid_input"
	ParseError       Kind = "parse_error"
	CycleDetected    Kind = "cycle_detected"
	MissingRecipe    Kind = "missing_recipe"
	NoValidSource    Kind = "no_valid_source"
	ChecksumMismatch Kind = "checksum_mismatch"
	SignatureInvalid Kind = "signature_invalid"
	ExtractFailed    Kind = "extract_failed"
	PatchFailed      Kind = "patch_failed"
	HookFailed       Kind = "hook_failed"
	BuildFailed      Kind = "build_failed"
	InstallFailed    Kind = "install_failed"
	PackageFailed    Kind = "package_failed"
	SandboxUnavail   Kind = "sandbox_unavailable"
	DBLocked         Kind = "db_locked"
	DBCorrupt        Kind = "db_corrupt"
	IOError          Kind = "io_error"
	PermissionDenied Kind = "permission_denied"
	Interrupted      Kind = "interrupted"
	HasDependents    Kind = "has_dependents"
	InvalidPrefix    Kind = "invalid_prefix"
)

// CycleError carries the specific cycle path alongside the CycleDetected
// sentinel, so callers that only errors.Is-check still work, while callers
// that need the path can errors.As into this type.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	s := "cycle detected:"
	for i, n := range e.Path {
		if i > 0 {
			s += " ->"
		}
		s += " " + n
	}
	return s
}

func (e *CycleError) Is(target error) bool {
	return target == CycleDetected
}

// DependentsError carries the list of direct dependents blocking a
// removal, alongside the HasDependents sentinel.
type DependentsError struct {
	Name       string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return e.Name + " has dependents: " + joinComma(e.Dependents)
}

func (e *DependentsError) Is(target error) bool {
	return target == HasDependents
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
