package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"github.com/minidock/minidock/pkg/state"
)

// namespaces joined by exec, in order. The mount namespace is entered
// through the root of the container instead since a multi threaded process
// cannot setns into it.
var execNamespaces = []struct {
	name  string
	flags int
}{
	{"ipc", unix.CLONE_NEWIPC},
	{"uts", unix.CLONE_NEWUTS},
	{"net", unix.CLONE_NEWNET},
	{"pid", unix.CLONE_NEWPID},
}

// ExecIO is the stdio of a command run by Exec
type ExecIO struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// Exec runs args inside the running container called name with the
// container's environment and returns the exit code of the command
func (r *Runtime) Exec(name string, args []string, eio ExecIO) (int, error) {
	if len(args) == 0 {
		return -1, errors.New("container: no command")
	}
	rec, err := r.Store.Load(name)
	if err != nil {
		return -1, err
	}
	if rec.Status != state.Running {
		return -1, fmt.Errorf("%w: %s is %s", state.ErrNotRunning, name, rec.Status)
	}
	pid, err := rec.Pid()
	if err != nil {
		return -1, err
	}
	procDir := "/proc/" + strconv.Itoa(pid)
	if _, err := os.Stat(procDir); err != nil {
		return -1, fmt.Errorf("container: %s: process %d: %w", name, pid, err)
	}
	env, err := readEnviron(procDir + "/environ")
	if err != nil {
		return -1, fmt.Errorf("container: %s: %w", name, err)
	}

	type result struct {
		code int
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		// the thread carries the joined namespaces and is never unlocked,
		// the runtime destroys it when the goroutine exits
		runtime.LockOSThread()
		code, err := r.execIn(pid, procDir, args, env, eio)
		ch <- result{code, err}
	}()
	res := <-ch
	return res.code, res.err
}

func (r *Runtime) execIn(pid int, procDir string, args, env []string, eio ExecIO) (int, error) {
	for _, ns := range execNamespaces {
		h, err := netns.GetFromPath(procDir + "/ns/" + ns.name)
		if err != nil {
			r.log.Warn("cannot open namespace", "ns", ns.name, "pid", pid, "err", err)
			continue
		}
		if err := netns.Setns(h, ns.flags); err != nil {
			r.log.Warn("cannot join namespace", "ns", ns.name, "pid", pid, "err", err)
		}
		h.Close()
	}

	root := procDir + "/root"
	bin, err := lookPathIn(root, args[0], env)
	if err != nil {
		return -1, fmt.Errorf("container: exec %s: %w", args[0], err)
	}
	cmd := &exec.Cmd{
		Path:        bin,
		Args:        args,
		Env:         env,
		Dir:         "/",
		Stdin:       eio.Stdin,
		Stdout:      eio.Stdout,
		Stderr:      eio.Stderr,
		SysProcAttr: &syscall.SysProcAttr{Chroot: root},
	}
	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("container: exec %s: %w", args[0], err)
	}
}

// lookPathIn resolves name within root and returns the path as seen from
// inside root
func lookPathIn(root, name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		if !path.IsAbs(name) {
			return "", fmt.Errorf("%s: relative path", name)
		}
		return name, findExecutableIn(root, name)
	}
	dirs, err := findPath(env)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		p := path.Join("/", dir, name)
		if findExecutableIn(root, p) == nil {
			return p, nil
		}
	}
	return "", errNotFound
}

// findExecutableIn checks p with symlinks resolved as if root were "/"
func findExecutableIn(root, p string) error {
	hp, err := securejoin.SecureJoin(root, p)
	if err != nil {
		return err
	}
	return findExecutable(hp)
}

// readEnviron splits a /proc/<pid>/environ file
func readEnviron(file string) ([]string, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var env []string
	for _, kv := range bytes.Split(b, []byte{0}) {
		if bytes.IndexByte(kv, '=') > 0 {
			env = append(env, string(kv))
		}
	}
	return env, nil
}
