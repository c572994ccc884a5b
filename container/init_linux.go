package container

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/minidock/minidock/pkg/mount"
	"github.com/minidock/minidock/pkg/seccomp"
	"github.com/minidock/minidock/pkg/unixsocket"
)

// IsInit reports whether the process was started as container init
func IsInit() bool {
	// Notice: docker init is also 1, additional check for args[1] == init
	return os.Getpid() == 1 && len(os.Args) >= 2 && os.Args[1] == initArg
}

// Init is called first thing in main. It is a noop unless the process is
// container init, in which case it sets up the container and execs the
// command, or exits with status 1 after reporting the failure to the host.
func Init() {
	if !IsInit() {
		return
	}
	// namespaces and the root are per thread until execve
	runtime.LockOSThread()

	soc, err := unixsocket.NewSocket(initFd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "container_init: %v\n", err)
		os.Exit(1)
	}
	err = initContainer(soc)
	// only a failure gets here
	if serr := soc.Send(reply{Error: newErrorReply(err)}, nil); serr != nil {
		fmt.Fprintf(os.Stderr, "container_init: %v\n", err)
	}
	os.Exit(1)
}

func initContainer(soc *unixsocket.Socket) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container_init: panic: %v", r)
		}
	}()

	var c initConfig
	msg, err := soc.Recv(&c)
	if err != nil {
		return fmt.Errorf("container_init: %w", err)
	}
	if c.LogFd {
		if msg == nil || len(msg.Fds) != 1 {
			return errors.New("container_init: expected log fd")
		}
		if err := redirectOutput(msg.Fds[0]); err != nil {
			return err
		}
	}
	if len(c.Args) == 0 {
		return errors.New("container_init: no command")
	}
	if err := mount.Isolate(c.Root); err != nil {
		return fmt.Errorf("container_init: %w", err)
	}
	if err := writeResolvConf(c.Nameservers); err != nil {
		return fmt.Errorf("container_init: %w", err)
	}
	if err := unix.Sethostname([]byte(c.Hostname)); err != nil {
		return fmt.Errorf("container_init: sethostname: %w", err)
	}
	env := append(append([]string{}, defaultEnv...), c.Env...)
	path, err := lookPath(c.Args[0], env)
	if err != nil {
		return fmt.Errorf("container_init: %s: %w", c.Args[0], err)
	}
	// ensure there's no fd leak to the command
	if err := closeOnExecAllFds(); err != nil {
		return fmt.Errorf("container_init: close_on_exec: %w", err)
	}
	if c.Seccomp {
		filter, err := seccomp.NewDefaultBuilder().Build()
		if err != nil {
			return fmt.Errorf("container_init: %w", err)
		}
		if err := filter.Load(); err != nil {
			return fmt.Errorf("container_init: %w", err)
		}
	}
	if err := soc.Send(reply{Ready: true}, nil); err != nil {
		return fmt.Errorf("container_init: %w", err)
	}
	// the socket is close on exec, a successful execve closes it
	err = unix.Exec(path, c.Args, env)
	return fmt.Errorf("container_init: execve %s: %w", path, err)
}

// redirectOutput makes fd the stdout and stderr of init
func redirectOutput(fd int) error {
	defer unix.Close(fd)
	for _, target := range []int{1, 2} {
		if err := unix.Dup3(fd, target, 0); err != nil {
			return fmt.Errorf("container_init: dup3 %d: %w", target, err)
		}
	}
	return nil
}

func writeResolvConf(nameservers []string) error {
	if len(nameservers) == 0 {
		return nil
	}
	var sb strings.Builder
	for _, ns := range nameservers {
		sb.WriteString("nameserver " + ns + "\n")
	}
	if err := os.MkdirAll("/etc", 0755); err != nil {
		return err
	}
	// a symlinked resolv.conf would point outside the container
	os.Remove(resolvConf)
	return os.WriteFile(resolvConf, []byte(sb.String()), 0644)
}

func closeOnExecAllFds() error {
	// get all fd from /proc/self/fd
	const fdPath = "/proc/self/fd"
	fds, err := os.ReadDir(fdPath)
	if err != nil {
		return err
	}
	for _, f := range fds {
		fd, err := strconv.Atoi(f.Name())
		if err != nil {
			return err
		}
		if fd > 2 {
			unix.CloseOnExec(fd)
		}
	}
	return nil
}
