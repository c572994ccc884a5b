// Package seccomp compiles syscall deny lists into seccomp BPF programs and
// installs them on the calling process.
package seccomp

import (
	"errors"
	"fmt"

	bpfseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// DefaultDeny lists syscalls a container process has no business calling
var DefaultDeny = []string{
	"kexec_load", "init_module", "finit_module", "delete_module",
	"reboot", "swapon", "swapoff", "acct",
	"add_key", "keyctl", "request_key",
	"open_by_handle_at", "bpf", "perf_event_open",
	"umount2", "pivot_root",
}

// Builder is used to build the filter
type Builder struct {
	Deny       []string
	Default    Action
	DenyAction Action
}

// NewDefaultBuilder allows everything except DefaultDeny, which fail with
// EPERM
func NewDefaultBuilder() *Builder {
	return &Builder{
		Deny:       DefaultDeny,
		Default:    ActionAllow,
		DenyAction: ActionErrno.WithReturnCode(int16(unix.EPERM)),
	}
}

// Build compiles the filter into kernel sock_filter instructions
func (b *Builder) Build() (Filter, error) {
	if b.Default.Action() == 0 || b.DenyAction.Action() == 0 {
		return nil, errors.New("seccomp: invalid action")
	}
	policy := bpfseccomp.Policy{
		DefaultAction: b.Default.bpfAction(),
		Syscalls: []bpfseccomp.SyscallGroup{
			{Names: b.Deny, Action: b.DenyAction.bpfAction()},
		},
	}
	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble: %w", err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble: %w", err)
	}
	return newFilter(raw), nil
}
