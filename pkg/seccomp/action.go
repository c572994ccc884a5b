package seccomp

import (
	bpfseccomp "github.com/elastic/go-seccomp-bpf"
)

// Action is the seccomp action taken on a filtered syscall
type Action uint32

// Action defines seccomp action to the syscall
// default value 0 is invalid
const (
	ActionAllow Action = iota + 1
	ActionErrno
	ActionTrace
	ActionKill
)

// WithReturnCode set the return code when action is errno or trace
func (a Action) WithReturnCode(code int16) Action {
	return a.Action() | Action(code)<<16
}

// ReturnCode get the return code
func (a Action) ReturnCode() int16 {
	return int16(a >> 16)
}

// Action get the basic action
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

func (a Action) String() string {
	switch a.Action() {
	case ActionAllow:
		return "allow"
	case ActionErrno:
		return "errno"
	case ActionTrace:
		return "trace"
	case ActionKill:
		return "kill"
	}
	return "invalid"
}

// bpfAction converts the action to its go-seccomp-bpf form. Unknown actions
// kill the process.
func (a Action) bpfAction() bpfseccomp.Action {
	var action bpfseccomp.Action
	switch a.Action() {
	case ActionAllow:
		return bpfseccomp.ActionAllow
	case ActionErrno:
		action = bpfseccomp.ActionErrno
	case ActionTrace:
		action = bpfseccomp.ActionTrace
	default:
		return bpfseccomp.ActionKillProcess
	}
	// the least 16 bit of ret value is SECCOMP_RET_DATA
	if code := a.ReturnCode(); code != 0 {
		action |= bpfseccomp.Action(uint16(code))
	}
	return action
}
