package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/porgproject/porg/internal/bootstrap"
	"github.com/spf13/pflag"
)

func chroot(root string) error {
	return syscall.Chroot(root)
}

func cmdBootstrap(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	manifestPath := fs.String("manifest", "", "path to the bootstrap manifest (default <ports-dir>/bootstrap.yaml)")
	dry := fs.Bool("dry", false, "list phases that would run without running them")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return usageErrf("bootstrap requires a subcommand: prepare|list|verify|rebuild <phase>|build|resume|enter|iso|clean|full")
	}
	sub, rest := rest[0], rest[1:]

	e, err := newEnv()
	if err != nil {
		return err
	}
	if *manifestPath == "" {
		*manifestPath = filepath.Join(e.cfg.PortsDir, "bootstrap.yaml")
	}

	switch sub {
	case "prepare":
		if _, err := bootstrap.LoadManifest(*manifestPath); err != nil {
			return partialErr(err)
		}
		if err := os.MkdirAll(e.cfg.LFS, 0o755); err != nil {
			return partialErr(err)
		}
		fmt.Printf("bootstrap root %s ready, manifest %s valid\n", e.cfg.LFS, *manifestPath)
		return nil

	case "list":
		m, err := bootstrap.LoadManifest(*manifestPath)
		if err != nil {
			return partialErr(err)
		}
		for _, p := range m.Phases {
			fmt.Printf("%s (%s)\n", p.Name, p.Recipe)
		}
		return nil

	case "verify":
		states, err := e.bootstrapr.Verify(*manifestPath)
		if err != nil {
			return partialErr(err)
		}
		var incomplete bool
		for _, st := range states {
			status := st.Status
			if status == "" {
				status = "pending"
				incomplete = true
			} else if status != bootstrap.StatusSuccess {
				incomplete = true
			}
			fmt.Printf("%s: %s\n", st.Name, status)
		}
		if incomplete {
			return issuesFoundErr(fmt.Errorf("one or more bootstrap phases are not at success"))
		}
		return nil

	case "rebuild":
		if len(rest) != 1 {
			return usageErrf("bootstrap rebuild requires exactly one phase name")
		}
		if err := e.bootstrapr.RebuildPhase(ctx, *manifestPath, rest[0]); err != nil {
			return partialErr(err)
		}
		return nil

	case "build":
		if *dry {
			m, err := bootstrap.LoadManifest(*manifestPath)
			if err != nil {
				return partialErr(err)
			}
			for _, p := range m.Phases {
				fmt.Printf("would build: %s (%s)\n", p.Name, p.Recipe)
			}
			return nil
		}
		if err := e.bootstrapr.Run(ctx, *manifestPath, false); err != nil {
			return partialErr(err)
		}
		return nil

	case "resume":
		if err := e.bootstrapr.Run(ctx, *manifestPath, true); err != nil {
			return partialErr(err)
		}
		return nil

	case "full":
		if err := os.MkdirAll(e.cfg.LFS, 0o755); err != nil {
			return partialErr(err)
		}
		if err := e.bootstrapr.Run(ctx, *manifestPath, false); err != nil {
			return partialErr(err)
		}
		return nil

	case "clean":
		if err := os.RemoveAll(e.bootstrapr.StateDir); err != nil {
			return partialErr(err)
		}
		fmt.Printf("cleared bootstrap progress under %s\n", e.bootstrapr.StateDir)
		return nil

	case "enter":
		return bootstrapEnter(e.cfg.LFS)

	case "iso":
		return bootstrapISO(ctx, e.cfg.LFS, filepath.Join(e.cfg.CacheDir, "bootstrap.iso"))

	default:
		return usageErrf("unknown bootstrap subcommand %q", sub)
	}
}

// bootstrapEnter chroots into the staged LFS root and execs an
// interactive shell, the conventional way to poke at a half-built
// system between bootstrap phases. Requires running as root.
func bootstrapEnter(root string) error {
	if err := os.Chdir(root); err != nil {
		return runtimeErr(err)
	}
	if err := chroot(root); err != nil {
		return runtimeErr(fmt.Errorf("chroot %s: %w (bootstrap enter requires root)", root, err))
	}
	shell := "/bin/bash"
	if _, err := os.Stat(shell); err != nil {
		shell = "/bin/sh"
	}
	return exec.Command(shell, "-i").Run()
}

// bootstrapISO packages the staged LFS root into a bootable ISO image via
// whichever mastering tool is available on $PATH, the way the Builder
// shells out to tar/compression binaries rather than linking an image
// library in.
func bootstrapISO(ctx context.Context, root, out string) error {
	tool := ""
	for _, candidate := range []string{"xorriso", "genisoimage", "mkisofs"} {
		if _, err := exec.LookPath(candidate); err == nil {
			tool = candidate
			break
		}
	}
	if tool == "" {
		return runtimeErr(fmt.Errorf("no ISO mastering tool (xorriso, genisoimage, mkisofs) found on PATH"))
	}

	var cmd *exec.Cmd
	switch tool {
	case "xorriso":
		cmd = exec.CommandContext(ctx, tool, "-as", "mkisofs", "-o", out, root)
	default:
		cmd = exec.CommandContext(ctx, tool, "-o", out, root)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return partialErr(fmt.Errorf("%s: %w", tool, err))
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}
