// Package workspace prepares the root filesystem of a container: a shared
// read-only base layer extracted from an image tarball, a per-container
// overlay on top of it and an optional bind mounted volume.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/minidock/minidock/pkg/archive"
	"github.com/minidock/minidock/pkg/logger"
	"github.com/minidock/minidock/pkg/volume"
)

const (
	containersDir = "containers"
	upperDir      = "upper"
	workDir       = "work"
	mergedDir     = "merged"
	archiveExt    = ".tar"
)

// Manager lays out workspaces under Root on top of the base Image
type Manager struct {
	Root  string
	Image string

	log *log.Logger
}

// Workspace is the set of directories backing one container
type Workspace struct {
	ID     string
	Base   string
	Dir    string
	Upper  string
	Work   string
	Merged string
	Volume *volume.Spec

	root string
	log  *log.Logger
}

// NewManager creates a manager for root using image as the base layer
func NewManager(root, image string) *Manager {
	return &Manager{Root: root, Image: image, log: logger.For("workspace")}
}

func validName(kind, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/,:\n") {
		return fmt.Errorf("workspace: invalid %s %q", kind, s)
	}
	return nil
}

// BaseDir is the extracted base layer shared by all containers
func (m *Manager) BaseDir() string {
	return filepath.Join(m.Root, m.Image)
}

// BaseArchive is the tarball the base layer is extracted from
func (m *Manager) BaseArchive() string {
	return filepath.Join(m.Root, m.Image+archiveExt)
}

// Open returns the workspace of id without touching the filesystem
func (m *Manager) Open(id string, vol *volume.Spec) (*Workspace, error) {
	if err := validName("id", id); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.Root, containersDir, id)
	return &Workspace{
		ID:     id,
		Base:   m.BaseDir(),
		Dir:    dir,
		Upper:  filepath.Join(dir, upperDir),
		Work:   filepath.Join(dir, workDir),
		Merged: filepath.Join(dir, mergedDir),
		Volume: vol,
		root:   m.Root,
		log:    m.log,
	}, nil
}

// Create builds the workspace of id and mounts it. On failure everything
// done so far is undone.
func (m *Manager) Create(ctx context.Context, id string, vol *volume.Spec) (_ *Workspace, err error) {
	if err := validName("image", m.Image); err != nil {
		return nil, err
	}
	if vol != nil {
		if err := vol.Validate(); err != nil {
			return nil, err
		}
	}
	w, err := m.Open(id, vol)
	if err != nil {
		return nil, err
	}
	if err := m.ensureBase(ctx); err != nil {
		return nil, err
	}

	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	if _, err := os.Stat(w.Dir); err == nil {
		return nil, fmt.Errorf("workspace: %s already exists", w.Dir)
	}
	for _, d := range []string{w.Upper, w.Work, w.Merged} {
		if err := os.MkdirAll(d, 0755); err != nil {
			os.RemoveAll(w.Dir)
			return nil, fmt.Errorf("workspace: mkdir %s: %w", d, err)
		}
	}
	undo = append(undo, func() { os.RemoveAll(w.Dir) })

	if err := mountOverlay(w); err != nil {
		return nil, err
	}
	undo = append(undo, func() { unmountOverlay(w) })

	if vol != nil {
		if err := mountVolume(w); err != nil {
			return nil, err
		}
	}
	m.log.Info("workspace ready", "id", id, "merged", w.Merged, "volume", vol)
	return w, nil
}

// ensureBase extracts the base archive unless the base layer already exists.
// Extraction goes to a temporary directory renamed into place, so concurrent
// callers never see a partial layer.
func (m *Manager) ensureBase(ctx context.Context) error {
	base := m.BaseDir()
	if fi, err := os.Stat(base); err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("workspace: base layer %s is not a directory", base)
		}
		return nil
	}
	if err := os.MkdirAll(m.Root, 0755); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", m.Root, err)
	}
	tmp, err := os.MkdirTemp(m.Root, "."+m.Image+"-*")
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	m.log.Info("extracting base layer", "archive", m.BaseArchive(), "dir", base)
	if err := archive.Extract(ctx, m.BaseArchive(), tmp); err != nil {
		return fmt.Errorf("workspace: base layer: %w", err)
	}
	if err := os.Chmod(tmp, 0755); err != nil {
		return err
	}
	if err := os.Rename(tmp, base); err != nil {
		if _, serr := os.Stat(base); serr == nil {
			return nil
		}
		return fmt.Errorf("workspace: base layer: %w", err)
	}
	return nil
}

// Destroy unmounts the volume, then the overlay, then removes the per
// container directories. Directories are kept when an unmount failed so
// nothing is deleted through a live mount.
func (w *Workspace) Destroy() error {
	var errs []error
	if w.Volume != nil && w.Volume.Valid {
		if err := unmountVolume(w); err != nil {
			errs = append(errs, err)
		}
	}
	if err := unmountOverlay(w); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, d := range []string{w.Merged, w.Upper, w.Work, w.Dir} {
		if err := os.RemoveAll(d); err != nil {
			errs = append(errs, fmt.Errorf("workspace: remove %s: %w", d, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	w.log.Debug("workspace removed", "id", w.ID)
	return nil
}

// Commit archives the merged root as image and returns the archive path
func (w *Workspace) Commit(ctx context.Context, image string) (string, error) {
	if err := validName("image", image); err != nil {
		return "", err
	}
	dst := filepath.Join(w.root, image+archiveExt)
	if err := archive.Create(ctx, w.Merged, dst); err != nil {
		return "", fmt.Errorf("workspace: commit %s: %w", image, err)
	}
	w.log.Info("committed", "id", w.ID, "image", dst)
	return dst, nil
}
