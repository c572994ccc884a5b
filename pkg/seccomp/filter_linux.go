package seccomp

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	seccompSetModeFilter   = 1
	seccompFilterFlagTsync = 1
)

// Filter is the BPF seccomp filter value
type Filter []syscall.SockFilter

func newFilter(raw []bpf.RawInstruction) Filter {
	f := make(Filter, len(raw))
	for i, r := range raw {
		f[i] = syscall.SockFilter{Code: r.Op, Jt: r.Jt, Jf: r.Jf, K: r.K}
	}
	return f
}

// SockFprog converts Filter to SockFprog for seccomp syscall
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}

// Load sets no_new_privs and installs the filter on every thread of the
// calling process
func (f Filter) Load() error {
	if len(f) == 0 {
		return errors.New("seccomp: empty filter")
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("seccomp: no_new_privs: %w", err)
	}
	prog := f.SockFprog()
	_, _, errno := unix.Syscall(unix.SYS_SECCOMP, seccompSetModeFilter, seccompFilterFlagTsync, uintptr(unsafe.Pointer(prog)))
	if errno != 0 {
		return fmt.Errorf("seccomp: load: %w", errno)
	}
	return nil
}
