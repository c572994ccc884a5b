package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// pivotDir is created inside the new root to hold the old one
const pivotDir = ".pivot_root"

// PivotRoot makes newRoot the root of the calling mount namespace and
// detaches the old root. The caller must be in a private mount namespace.
func PivotRoot(newRoot string) error {
	// stop mount events from propagating back to the host
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("pivot_root: make / private: %w", err)
	}
	// new_root has to be a mount point distinct from its parent
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("pivot_root: bind %s: %w", newRoot, err)
	}
	old := filepath.Join(newRoot, pivotDir)
	if err := os.Mkdir(old, 0700); err != nil && !os.IsExist(err) {
		return fmt.Errorf("pivot_root: mkdir %s: %w", old, err)
	}
	if err := unix.PivotRoot(newRoot, old); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("pivot_root: chdir: %w", err)
	}
	old = filepath.Join("/", pivotDir)
	if err := unix.Unmount(old, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("pivot_root: unmount old root: %w", err)
	}
	if err := os.Remove(old); err != nil {
		return fmt.Errorf("pivot_root: remove %s: %w", old, err)
	}
	return nil
}

// Isolate switches the root to newRoot and mounts the standard pseudo
// filesystems. Any failure is returned; nothing is skipped.
func Isolate(newRoot string) error {
	if err := PivotRoot(newRoot); err != nil {
		return err
	}
	if _, err := NewIsolatorBuilder().Mount(); err != nil {
		return fmt.Errorf("isolate: %w", err)
	}
	return nil
}
