// Package sandbox implements the build/install isolation and the linear
// build state machine of spec.md §4.F.
//
// The namespace isolator re-creates the teacher's internal/build.Ctx.Build
// approach almost verbatim: CLONE_NEWNS|CLONE_NEWUSER on the child's
// SysProcAttr, with a single-uid UidMappings/GidMappings entry so the
// child sees itself as root inside the namespace and can bind-mount
// without host privilege. Where the teacher re-execs its own binary under
// those clone flags and then runs Go code inside the new namespace to set
// up bind mounts, this package instead generates a shell script that does
// the mounting and then execs the recipe's build/install command — simpler
// or chroot(2) per the SandboxSpec, both running under the same
// SysProcAttr knobs the teacher uses. The chroot fallback mirrors the
// teacher's own non-hermetic branch (unix.Chroot(b.ChrootDir)), invoked
// here when CLONE_NEWUSER is unavailable (e.g. sysctl
// kernel.unprivileged_userns_clone=0, or running inside an already
// namespaced container).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/porgproject/porg/internal/perr"
)

// Spec describes one sandboxed command invocation.
type Spec struct {
	Name, Version, Prefix string
	SourceDir             string // host path, read-only bind mount target
	DestDir               string // host path, writable bind mount target (becomes $DESTDIR)
	Jobs                  int
	Command               string // shell command to execute once the sandbox is set up
	Env                   []string
}

// Isolator runs Spec.Command inside some form of filesystem isolation.
type Isolator interface {
	Run(ctx context.Context, spec Spec, stdout, stderr io.Writer) error
}

func sandboxEnv(spec Spec, destDir string) []string {
	env := append([]string{}, spec.Env...)
	env = append(env,
		"DESTDIR="+destDir,
		fmt.Sprintf("JOBS=%d", spec.Jobs),
		"PKG_NAME="+spec.Name,
		"PKG_VERSION="+spec.Version,
		"PKG_PREFIX="+spec.Prefix,
		"PATH=/usr/bin:/bin:/usr/sbin:/sbin",
		"HOME=/tmp",
	)
	return env
}

// nsIsolator runs the command in a private mount+user(+net) namespace:
// read-only bind mounts of the host toolchain, a private /proc and /tmp,
// and the source/dest trees bind-mounted into a throwaway root. /dev is
// an empty directory; no device nodes are mounted there.
type nsIsolator struct{}

func (nsIsolator) Run(ctx context.Context, spec Spec, stdout, stderr io.Writer) error {
	root, err := os.MkdirTemp("", "porg-sandbox-")
	if err != nil {
		return perr.IOError.Newf("creating sandbox root")
	}
	defer os.RemoveAll(root)

	destInSandbox := filepath.Join("/dest")
	srcInSandbox := filepath.Join("/src", spec.Name)

	script := sandboxSetupScript(root, spec, srcInSandbox, destInSandbox)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = sandboxEnv(spec, destInSandbox)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWUSER | syscall.CLONE_NEWNET,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Geteuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getegid(), Size: 1},
		},
	}

	var errBuf bytes.Buffer
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, &errBuf)
	} else {
		cmd.Stderr = &errBuf
	}

	if err := cmd.Run(); err != nil {
		if isPermissionErr(err, errBuf.String()) {
			return perr.SandboxUnavail.Newf("namespace sandbox unavailable: %v", err)
		}
		return perr.BuildFailed.Newf("sandboxed command failed: %v", err)
	}
	return nil
}

func isPermissionErr(err error, stderr string) bool {
	msg := strings.ToLower(err.Error() + " " + stderr)
	return strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "invalid argument") // unshare(CLONE_NEWUSER) when userns disabled
}

// sandboxSetupScript produces the shell preamble that bind-mounts the
// host toolchain read-only, the source and dest trees, mounts a private
// /proc and /tmp (leaving /dev an empty directory), chroots into root,
// and finally execs spec.Command.
func sandboxSetupScript(root string, spec Spec, srcInSandbox, destInSandbox string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "set -e\n")
	for _, d := range []string{"dev", "proc", "tmp", "usr", "bin", "lib", "lib64", "src", "dest"} {
		fmt.Fprintf(&b, "mkdir -p %s\n", filepath.Join(root, d))
	}
	for _, hostDir := range []string{"/usr", "/bin", "/lib", "/lib64"} {
		fmt.Fprintf(&b, "mount --bind -o ro %s %s 2>/dev/null || mount --bind %s %s\n",
			hostDir, filepath.Join(root, strings.TrimPrefix(hostDir, "/")),
			hostDir, filepath.Join(root, strings.TrimPrefix(hostDir, "/")))
	}
	fmt.Fprintf(&b, "mount -t tmpfs tmpfs %s\n", filepath.Join(root, "tmp"))
	fmt.Fprintf(&b, "mount -t proc proc %s\n", filepath.Join(root, "proc"))
	fmt.Fprintf(&b, "mkdir -p %s\n", filepath.Join(root, strings.TrimPrefix(srcInSandbox, "/")))
	fmt.Fprintf(&b, "mount --bind -o ro %s %s\n", spec.SourceDir, filepath.Join(root, strings.TrimPrefix(srcInSandbox, "/")))
	fmt.Fprintf(&b, "mount --bind %s %s\n", spec.DestDir, filepath.Join(root, strings.TrimPrefix(destInSandbox, "/")))
	fmt.Fprintf(&b, "cd %s\n", filepath.Join(root, strings.TrimPrefix(srcInSandbox, "/")))
	fmt.Fprintf(&b, "exec chroot %s /bin/sh -c %s\n", root, shellQuote("cd /"+filepath.Base(srcInSandbox)+" && "+spec.Command))
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// chrootIsolator is the privileged fallback: it chroots the child process
// directly via SysProcAttr.Chroot rather than via namespaces, matching
// the teacher's b.Hermetic == false branch.
type chrootIsolator struct{}

func (chrootIsolator) Run(ctx context.Context, spec Spec, stdout, stderr io.Writer) error {
	root, err := os.MkdirTemp("", "porg-chroot-")
	if err != nil {
		return perr.IOError.Newf("creating chroot root")
	}
	defer os.RemoveAll(root)

	destInSandbox := "/dest"
	for _, d := range []string{"dev", "proc", "tmp", "dest"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return perr.IOError.Newf("preparing chroot dir %s", d)
		}
	}
	for _, hostDir := range []string{"/usr", "/bin", "/lib", "/lib64"} {
		target := filepath.Join(root, hostDir)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return perr.IOError.Newf("preparing chroot mount point %s", hostDir)
		}
		if err := exec.Command("mount", "--bind", "-o", "ro", hostDir, target).Run(); err != nil {
			return perr.SandboxUnavail.Newf("bind mounting %s into chroot: %v", hostDir, err)
		}
		defer exec.Command("umount", "-l", target).Run()
	}
	if err := exec.Command("mount", "--bind", spec.DestDir, filepath.Join(root, destInSandbox)).Run(); err != nil {
		return perr.SandboxUnavail.Newf("bind mounting dest dir into chroot: %v", err)
	}
	defer exec.Command("umount", "-l", filepath.Join(root, destInSandbox)).Run()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", spec.Command)
	cmd.Dir = "/"
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = sandboxEnv(spec, destInSandbox)
	cmd.SysProcAttr = &syscall.SysProcAttr{Chroot: root}
	if err := cmd.Run(); err != nil {
		return perr.BuildFailed.Newf("chrooted command failed: %v", err)
	}
	return nil
}
