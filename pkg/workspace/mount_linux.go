package workspace

import (
	"errors"
	"fmt"
	"os"

	"github.com/minidock/minidock/pkg/mount"
)

func mountOverlay(w *Workspace) error {
	if _, err := mount.NewBuilder().WithOverlay(w.Base, w.Upper, w.Work, w.Merged).Mount(); err != nil {
		return fmt.Errorf("workspace: overlay: %w", err)
	}
	return nil
}

func unmountOverlay(w *Workspace) error {
	if err := mount.Unmount(w.Merged); err != nil && !errors.Is(err, mount.ErrNotMounted) {
		return fmt.Errorf("workspace: %w", err)
	}
	return nil
}

func mountVolume(w *Workspace) error {
	if err := os.MkdirAll(w.Volume.HostPath, 0755); err != nil {
		return fmt.Errorf("workspace: volume host dir: %w", err)
	}
	target, err := w.Volume.Target(w.Merged)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if _, err := mount.NewBuilder().WithBind(w.Volume.HostPath, target, false).Mount(); err != nil {
		return fmt.Errorf("workspace: volume: %w", err)
	}
	return nil
}

func unmountVolume(w *Workspace) error {
	target, err := w.Volume.Target(w.Merged)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := mount.Unmount(target); err != nil && !errors.Is(err, mount.ErrNotMounted) {
		return fmt.Errorf("workspace: volume: %w", err)
	}
	return nil
}
