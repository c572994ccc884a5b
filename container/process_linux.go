package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/minidock/minidock/pkg/unixsocket"
)

// initProcess is the host side handle of a starting container init
type initProcess struct {
	cmd    *exec.Cmd
	socket *unixsocket.Socket
}

type stdio struct {
	in       io.Reader
	out, err io.Writer
}

// startInit clones exe as container init into new namespaces. Init blocks
// on the socket until configure is called.
func startInit(exe string, s stdio, detach bool) (*initProcess, error) {
	// prepare host <-> container unix socket
	ins, outs, err := newPassCredSocketPair()
	if err != nil {
		return nil, fmt.Errorf("container: failed to create socket: %w", err)
	}
	defer outs.Close()

	outf, err := outs.File()
	if err != nil {
		ins.Close()
		return nil, fmt.Errorf("container: failed to dup container socket fd: %w", err)
	}
	defer outf.Close()

	cmd := &exec.Cmd{
		Path:       exe,
		Args:       []string{exe, initArg},
		Env:        []string{PathEnv},
		Stdin:      s.in,
		Stdout:     s.out,
		Stderr:     s.err,
		ExtraFiles: []*os.File{outf},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: cloneFlags,
			// a detached container must not get the terminal's signals
			Setsid: detach,
		},
	}
	if err := cmd.Start(); err != nil {
		ins.Close()
		return nil, fmt.Errorf("container: failed to start container init: %w", err)
	}
	return &initProcess{cmd: cmd, socket: ins}, nil
}

// newPassCredSocketPair creates socket pair and let the first socket to
// receive credential information
func newPassCredSocketPair() (*unixsocket.Socket, *unixsocket.Socket, error) {
	ins, outs, err := unixsocket.NewSocketPair()
	if err != nil {
		return nil, nil, err
	}
	if err = ins.SetPassCred(1); err != nil {
		ins.Close()
		outs.Close()
		return nil, nil, err
	}
	return ins, outs, nil
}

func (p *initProcess) Pid() int {
	return p.cmd.Process.Pid
}

// configure sends the init config, with logFile as the output of the
// container when set
func (p *initProcess) configure(c *initConfig, logFile *os.File) error {
	var msg *unixsocket.Msg
	if logFile != nil {
		c.LogFd = true
		msg = &unixsocket.Msg{Fds: []int{int(logFile.Fd())}}
	}
	if err := p.socket.Send(c, msg); err != nil {
		return fmt.Errorf("container: configure init: %w", err)
	}
	return nil
}

// waitReady waits for init to report that the container is set up and
// then for the execve of the command
func (p *initProcess) waitReady() error {
	var rep reply
	msg, err := p.socket.Recv(&rep)
	if err != nil {
		return fmt.Errorf("container: init exited before reporting: %w", err)
	}
	if rep.Error != nil {
		return rep.Error
	}
	if msg == nil || msg.Cred == nil || int(msg.Cred.Pid) != p.Pid() {
		return errors.New("container: ready reply from unexpected sender")
	}

	rep = reply{}
	if _, err = p.socket.Recv(&rep); errors.Is(err, os.ErrClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}
	if rep.Error != nil {
		return rep.Error
	}
	return errors.New("container: unexpected reply from init")
}

// wait waits for init to exit and returns its exit code. A signal death is
// reported as 128 + signal like a shell does.
func (p *initProcess) wait() (int, error) {
	err := p.cmd.Wait()
	ps := p.cmd.ProcessState
	if ps == nil {
		return -1, err
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return ps.ExitCode(), nil
}

// kill kills init, and with it every process of the pid namespace
func (p *initProcess) kill() {
	p.socket.Close()
	p.cmd.Process.Kill()
	p.cmd.Wait()
}

// release lets a detached init run on without this process
func (p *initProcess) release() {
	p.socket.Close()
	p.cmd.Process.Release()
}
