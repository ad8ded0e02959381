package sandbox

import (
	"context"
	"os"
	"os/exec"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
)

// runHooks executes cmds in order with PKG_NAME/PKG_VERSION/PKG_PREFIX
// exported as environment variables, per spec.md §4.F's hook contract. A
// non-zero exit is fatal unless force is set, in which case it is logged
// and execution continues.
func runHooks(ctx context.Context, log *plog.Session, stage, name, version, prefix string, cmds []string, force bool) error {
	env := append(os.Environ(), "PKG_NAME="+name, "PKG_VERSION="+version, "PKG_PREFIX="+prefix)
	for _, c := range cmds {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c)
		cmd.Env = env
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			if force {
				if log != nil {
					log.Warnf("%s hook %q failed (forced, continuing): %v", stage, c, err)
				}
				continue
			}
			return perr.HookFailed.Newf("%s hook %q: %v", stage, c, err)
		}
	}
	return nil
}
