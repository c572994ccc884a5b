package container

import (
	"errors"
	"syscall"
)

// initConfig is sent to container init once the host side is wired
type initConfig struct {
	ID          string
	Root        string
	Args        []string
	Env         []string
	Hostname    string
	Nameservers []string
	Seccomp     bool
	LogFd       bool // the log fd is attached as SCM_RIGHTS
}

// reply is the message send back from container init
type reply struct {
	Ready bool
	Error *errorReply // nil if no error
}

// errorReply stores error returned back from container
type errorReply struct {
	Msg   string
	Errno *syscall.Errno
}

func (e *errorReply) Error() string {
	return e.Msg
}

func (e *errorReply) Unwrap() error {
	if e.Errno == nil {
		return nil
	}
	return *e.Errno
}

// newErrorReply keeps the errno found in err's chain
func newErrorReply(err error) *errorReply {
	rep := &errorReply{Msg: err.Error()}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		rep.Errno = &errno
	}
	return rep
}
