// Package mount describes mount(2) calls and performs the root filesystem
// switch of a container.
package mount

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mount defines syscall for mount points
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
}

// IsBindMount returns if it is a bind mount
func (m Mount) IsBindMount() bool {
	return m.Flags&unix.MS_BIND == unix.MS_BIND
}

// IsReadOnly returns if it is a readonly mount
func (m Mount) IsReadOnly() bool {
	return m.Flags&unix.MS_RDONLY == unix.MS_RDONLY
}

// IsTmpFs returns if it is a tmpfs mount
func (m Mount) IsTmpFs() bool {
	return m.FsType == "tmpfs"
}

func (m Mount) String() string {
	flag := "rw"
	if m.IsReadOnly() {
		flag = "ro"
	}
	switch {
	case m.IsBindMount():
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)

	case m.IsTmpFs():
		return fmt.Sprintf("tmpfs[%s]", m.Target)

	case m.FsType == "proc":
		return fmt.Sprintf("proc[%s]", flag)

	case m.FsType == "sysfs":
		return fmt.Sprintf("sysfs[%s]", flag)

	case m.FsType == "overlay":
		return fmt.Sprintf("overlay[%s]", m.Target)

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
