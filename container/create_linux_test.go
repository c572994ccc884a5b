package container

import (
	"bytes"
	"context"
	"debug/elf"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minidock/minidock/pkg/archive"
	"github.com/minidock/minidock/pkg/state"
)

// the test binary is re-executed as container init
func TestMain(m *testing.M) {
	Init()
	os.Exit(m.Run())
}

// staticBusybox returns a busybox binary that runs without a dynamic loader
func staticBusybox(t *testing.T) string {
	p, err := exec.LookPath("busybox")
	if err != nil {
		t.Skip("busybox not found")
	}
	f, err := elf.Open(p)
	if err != nil {
		t.Skipf("busybox: %v", err)
	}
	defer f.Close()
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			t.Skip("busybox is dynamically linked")
		}
	}
	return p
}

// newCreateRuntime returns a runtime whose base image is a static busybox.
// It skips unless containers can be created on this host.
func newCreateRuntime(t *testing.T) *Runtime {
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	bb := staticBusybox(t)
	rt := newTestRuntime(t)

	src := t.TempDir()
	bin := filepath.Join(src, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	in, err := os.Open(bb)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.OpenFile(filepath.Join(bin, "busybox"), os.O_CREATE|os.O_WRONLY, 0755)
	require.NoError(t, err)
	_, err = io.Copy(out, in)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	for _, applet := range []string{"sh", "sleep", "echo", "true", "hostname"} {
		require.NoError(t, os.Symlink("busybox", filepath.Join(bin, applet)))
	}
	require.NoError(t, archive.Create(context.Background(), src, rt.Workspaces.BaseArchive()))

	// overlay is not available everywhere, e.g. on top of another overlay
	ws, err := rt.Workspaces.Create(context.Background(), "overlaychk", nil)
	if err != nil {
		t.Skipf("cannot create workspace: %v", err)
	}
	require.NoError(t, ws.Destroy())
	return rt
}

func workspaceDir(t *testing.T, rt *Runtime, id string) string {
	ws, err := rt.Workspaces.Open(id, nil)
	require.NoError(t, err)
	return ws.Dir
}

func TestCreateForeground(t *testing.T) {
	rt := newCreateRuntime(t)
	var out bytes.Buffer
	rec, err := rt.Create(context.Background(), Options{
		Name:   "fg",
		Args:   []string{"/bin/sh", "-c", "echo hello from $(hostname); exit 3"},
		Stdout: &out,
		Stderr: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, state.Exited, rec.Status)
	assert.Equal(t, 3, rec.ExitCode)
	assert.Equal(t, "hello from "+rec.ID+"\n", out.String())

	// a foreground container leaves nothing behind
	_, err = rt.Store.Load("fg")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.NoDirExists(t, rt.Store.Dir("fg"))
	assert.NoDirExists(t, workspaceDir(t, rt, rec.ID))
}

func TestCreateForegroundCommit(t *testing.T) {
	rt := newCreateRuntime(t)
	rec, err := rt.Create(context.Background(), Options{
		Args:   []string{"/bin/sh", "-c", "echo kept > /marker"},
		Commit: "snapshot",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ExitCode)

	dst := t.TempDir()
	require.NoError(t, archive.Extract(context.Background(), filepath.Join(rt.cfg.RootDir, "snapshot.tar"), dst))
	b, err := os.ReadFile(filepath.Join(dst, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(b))
}

func TestCreateDetached(t *testing.T) {
	rt := newCreateRuntime(t)
	rec, err := rt.Create(context.Background(), Options{
		Name:   "bg",
		Args:   []string{"/bin/sh", "-c", "echo started; exec sleep 60"},
		Detach: true,
	})
	require.NoError(t, err)
	assert.Equal(t, state.Running, rec.Status)
	pid, err := rec.Pid()
	require.NoError(t, err)
	assert.True(t, processAlive(pid))

	loaded, err := rt.Store.Load("bg")
	require.NoError(t, err)
	assert.Equal(t, state.Running, loaded.Status)
	assert.Equal(t, rec.PID, loaded.PID)
	assert.DirExists(t, workspaceDir(t, rt, rec.ID))

	assert.Eventually(t, func() bool {
		var buf bytes.Buffer
		return rt.Logs("bg", &buf) == nil && strings.Contains(buf.String(), "started")
	}, 5*time.Second, 20*time.Millisecond)

	_, err = rt.Create(context.Background(), Options{Name: "bg", Args: []string{"/bin/true"}, Detach: true})
	assert.ErrorIs(t, err, state.ErrExists)

	assert.ErrorIs(t, rt.Remove("bg"), state.ErrRunning)
	require.NoError(t, rt.Stop("bg"))
	require.NoError(t, rt.Remove("bg"))

	assert.False(t, processAlive(pid))
	_, err = rt.Store.Load("bg")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.NoDirExists(t, workspaceDir(t, rt, rec.ID))
}

func TestCreateUnwindsOnCgroupFailure(t *testing.T) {
	rt := newCreateRuntime(t)
	// a file where the cgroup hierarchy should be
	cgroupFile := filepath.Join(t.TempDir(), "cgroup")
	require.NoError(t, os.WriteFile(cgroupFile, nil, 0644))
	rt.cfg.CgroupRoot = cgroupFile

	_, err := rt.Create(context.Background(), Options{
		Name:   "broken",
		Args:   []string{"/bin/sleep", "60"},
		Detach: true,
	})
	require.Error(t, err)

	_, err = rt.Store.Load("broken")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.NoDirExists(t, rt.Store.Dir("broken"))
	entries, err := os.ReadDir(filepath.Join(rt.cfg.RootDir, "containers"))
	if err == nil {
		assert.Empty(t, entries)
	}
	recs, err := rt.List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}
