package recipe

import (
	"fmt"

	"github.com/porgproject/porg/internal/perr"
)

// ParseError is returned when the recipe grammar is violated; it carries
// the offending position so callers can point the user at the exact line.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Reason)
}

// Is makes errors.Is(err, perr.ParseError) resolve through this concrete
// type, so callers can either match the sentinel or errors.As for the
// position detail.
func (e *ParseError) Is(target error) bool {
	return target == perr.ParseError
}
