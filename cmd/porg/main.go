// Command porg is the orchestrator entry point of spec.md §6: one verb
// per subsystem (install, remove, upgrade, resolve, audit, bootstrap,
// sync), dispatched from a flat table the way the teacher's
// cmd/distri/distri.go dispatches its own verbs, wired to an
// InterruptibleContext and an at-exit cleanup chain in the same shape.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/porgproject/porg"
	"github.com/spf13/pflag"
)

var debug = pflag.BoolP("debug", "d", false, "format error messages with additional detail")
var confPath = pflag.StringP("config", "c", "", "path to porg.conf (default /etc/porg/porg.conf)")

// exitError carries an explicit process exit code alongside the
// underlying error, so a verb can distinguish "invalid usage" (2) from
// "ran, but found or left behind a problem" (1) from "ran, and something
// failed partway through" (3), per spec.md §6's exit code table.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrf(format string, args ...interface{}) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func runtimeErr(err error) error {
	return &exitError{code: 2, err: err}
}

func partialErr(err error) error {
	return &exitError{code: 3, err: err}
}

func issuesFoundErr(err error) error {
	return &exitError{code: 1, err: err}
}

type verb struct {
	fn   func(ctx context.Context, args []string) error
	help string
}

var verbs = map[string]verb{
	"install":   {cmdInstall, "resolve, build and register packages"},
	"remove":    {cmdRemove, "uninstall packages"},
	"upgrade":   {cmdUpgrade, "plan and execute an upgrade of one package or the world"},
	"resolve":   {cmdResolve, "scan for and optionally repair broken/orphaned packages"},
	"audit":     {cmdAudit, "run the full audit report, optionally repairing findings"},
	"bootstrap": {cmdBootstrap, "drive the LFS-style bootstrap manifest"},
	"sync":      {cmdSync, "update the ports tree from its configured remote"},
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "usage: porg [-c config] <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "commands:\n")
	for _, name := range []string{"install", "remove", "upgrade", "resolve", "audit", "bootstrap", "sync"} {
		fmt.Fprintf(os.Stderr, "\t%-10s %s\n", name, verbs[name].help)
	}
}

func funcmain() int {
	// Interspersed parsing off: global flags must precede the verb, and
	// everything from the verb on (including its own -flags) is left for
	// that verb's own FlagSet to parse, the same split stdlib flag.Parse
	// gives the teacher's cmd/distri/distri.go for free by stopping at
	// the first non-flag argument.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		printHelp()
		return 2
	}
	name, args := args[0], args[1:]
	if name == "help" {
		printHelp()
		return 0
	}

	v, ok := verbs[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "porg: unknown command %q\n", name)
		printHelp()
		return 2
	}

	ctx, canc := porg.InterruptibleContext()
	defer canc()

	err := v.fn(ctx, args)
	if err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintf(os.Stderr, "porg %s: interrupted\n", name)
			return 130
		}
		if *debug {
			fmt.Fprintf(os.Stderr, "porg %s: %+v\n", name, err)
		} else {
			fmt.Fprintf(os.Stderr, "porg %s: %v\n", name, err)
		}
		if ee, ok := err.(*exitError); ok {
			return ee.code
		}
		return 3
	}

	if err := porg.RunAtExit(); err != nil {
		fmt.Fprintf(os.Stderr, "porg: at-exit cleanup: %v\n", err)
		return 3
	}
	return 0
}

func main() {
	os.Exit(funcmain())
}
