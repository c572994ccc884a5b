package mount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mount calls mount syscall, the target is created when missing
func (m *Mount) Mount() error {
	if err := ensureMountTargetExists(m.Source, m.Target); err != nil {
		return fmt.Errorf("mount: target %s: %w", m.Target, err)
	}
	if err := unix.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data); err != nil {
		return fmt.Errorf("mount: %v: %w", m, err)
	}
	// Read-only bind mount need to be remounted
	const bindRo = unix.MS_BIND | unix.MS_RDONLY
	if m.Flags&bindRo == bindRo {
		if err := unix.Mount("", m.Target, m.FsType, m.Flags|unix.MS_REMOUNT, m.Data); err != nil {
			return fmt.Errorf("mount: remount %v: %w", m, err)
		}
	}
	return nil
}

// ensureMountTargetExists creates a directory target, or an empty file when
// a regular file is bind mounted
func ensureMountTargetExists(source, target string) error {
	isFile := false
	if fi, err := os.Stat(source); err == nil {
		isFile = !fi.IsDir()
	}
	if !isFile {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Unmount unmounts target. A target that is not a mount point is reported as
// ErrNotMounted.
func Unmount(target string) error {
	return unmount(target, 0)
}

// ErrNotMounted is returned when the target is not a mount point
var ErrNotMounted = errors.New("mount: not mounted")

func unmount(target string, flags int) error {
	err := unix.Unmount(target, flags)
	for errors.Is(err, unix.EINTR) {
		err = unix.Unmount(target, flags)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %s", ErrNotMounted, target)
	default:
		return fmt.Errorf("mount: unmount %s: %w", target, err)
	}
}
