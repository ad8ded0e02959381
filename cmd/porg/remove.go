package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/porgproject/porg/internal/remove"
	"github.com/spf13/pflag"
)

func cmdRemove(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("remove", pflag.ContinueOnError)
	force := fs.Bool("force", false, "ignore dependents and unsafe-prefix refusals")
	recursive := fs.Bool("recursive", false, "cascade into packages left orphaned by this removal")
	dryRun := fs.Bool("dry-run", false, "compute and log decisions without removing anything")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}
	names := fs.Args()
	if len(names) == 0 {
		return usageErrf("remove requires at least one package name")
	}

	if !*yes && !*dryRun && !confirm(fmt.Sprintf("remove %s?", strings.Join(names, ", "))) {
		return nil
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	opts := remove.Options{Force: *force, Recursive: *recursive, DryRun: *dryRun}
	var failed []string
	for _, name := range names {
		removed, err := e.remover.Remove(ctx, name, opts)
		if err != nil {
			e.log.Errorf("removing %s: %v", name, err)
			failed = append(failed, name)
			continue
		}
		for _, k := range removed {
			fmt.Println(k)
		}
	}
	if len(failed) > 0 {
		return partialErr(fmt.Errorf("failed to remove: %s", strings.Join(failed, ", ")))
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	ans := strings.ToLower(strings.TrimSpace(sc.Text()))
	return ans == "y" || ans == "yes"
}
