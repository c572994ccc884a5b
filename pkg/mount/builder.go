package mount

import (
	"strings"

	"golang.org/x/sys/unix"
)

const (
	bind   = unix.MS_BIND | unix.MS_REC
	pseudo = unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV
)

// Builder collects mounts to be applied in order
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates new mount builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// NewIsolatorBuilder creates the pseudo filesystems every container root gets
// after pivot_root: proc, a tmpfs /dev, sysfs and a world writable /tmp
func NewIsolatorBuilder() *Builder {
	return NewBuilder().
		WithProc().
		WithMount(Mount{
			Source: "tmpfs",
			Target: "/dev",
			FsType: "tmpfs",
			Flags:  unix.MS_NOSUID | unix.MS_STRICTATIME,
			Data:   "mode=755",
		}).
		WithSysfs().
		WithTmpfs("/tmp", "mode=1777")
}

// WithMount add single mount to builder
func (b *Builder) WithMount(m Mount) *Builder {
	b.Mounts = append(b.Mounts, m)
	return b
}

// WithBind adds a recursive bind mount to builder
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	var flags uintptr = bind
	if readonly {
		flags |= unix.MS_RDONLY
	}
	b.Mounts = append(b.Mounts, Mount{
		Source: source,
		Target: target,
		Flags:  flags,
	})
	return b
}

// WithTmpfs add a tmpfs mount to builder
func (b *Builder) WithTmpfs(target, data string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  unix.MS_NOSUID | unix.MS_NODEV,
		Data:   data,
	})
	return b
}

// WithProc add proc file system at /proc
func (b *Builder) WithProc() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: "/proc",
		FsType: "proc",
		Flags:  pseudo,
	})
	return b
}

// WithSysfs add sysfs at /sys
func (b *Builder) WithSysfs() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "sysfs",
		Target: "/sys",
		FsType: "sysfs",
		Flags:  pseudo,
	})
	return b
}

// WithOverlay adds an overlay of upper on lower at target
func (b *Builder) WithOverlay(lower, upper, work, target string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "overlay",
		Target: target,
		FsType: "overlay",
		Data:   "lowerdir=" + lower + ",upperdir=" + upper + ",workdir=" + work,
	})
	return b
}

func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
