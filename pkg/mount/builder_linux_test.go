package mount

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuilder_WithBind(t *testing.T) {
	b := NewBuilder().WithBind("/src", "/dst", true)
	if len(b.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(b.Mounts))
	}
	m := b.Mounts[0]
	if m.Source != "/src" || m.Target != "/dst" {
		t.Errorf("unexpected mount: %+v", m)
	}
	if !m.IsBindMount() {
		t.Errorf("expected bind mount")
	}
	if !m.IsReadOnly() {
		t.Errorf("expected readonly mount")
	}
	if m.Flags&unix.MS_REC == 0 {
		t.Errorf("expected recursive bind")
	}
}

func TestBuilder_WithOverlay(t *testing.T) {
	b := NewBuilder().WithOverlay("/l", "/u", "/w", "/m")
	m := b.Mounts[0]
	if m.FsType != "overlay" || m.Target != "/m" {
		t.Errorf("unexpected mount: %+v", m)
	}
	if m.Data != "lowerdir=/l,upperdir=/u,workdir=/w" {
		t.Errorf("unexpected overlay data: %q", m.Data)
	}
}

func TestNewIsolatorBuilder(t *testing.T) {
	b := NewIsolatorBuilder()
	want := []struct {
		target, fsType, data string
		flags                uintptr
	}{
		{"/proc", "proc", "", unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV},
		{"/dev", "tmpfs", "mode=755", unix.MS_NOSUID | unix.MS_STRICTATIME},
		{"/sys", "sysfs", "", unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV},
		{"/tmp", "tmpfs", "mode=1777", unix.MS_NOSUID | unix.MS_NODEV},
	}
	if len(b.Mounts) != len(want) {
		t.Fatalf("expected %d mounts, got %d", len(want), len(b.Mounts))
	}
	for i, w := range want {
		m := b.Mounts[i]
		if m.Target != w.target || m.FsType != w.fsType || m.Data != w.data || m.Flags != w.flags {
			t.Errorf("mount %d = %+v, want %+v", i, m, w)
		}
	}
}

func TestBuilder_String(t *testing.T) {
	b := NewBuilder().
		WithBind("/src", "/dst", false).
		WithTmpfs("/tmp", "size=1m").
		WithProc()
	s := b.String()
	if !strings.HasPrefix(s, "Mounts: ") {
		t.Errorf("unexpected prefix: %q", s)
	}
	if !strings.Contains(s, "bind[/src:/dst:rw]") {
		t.Errorf("missing bind: %q", s)
	}
	if !strings.Contains(s, "tmpfs[/tmp]") {
		t.Errorf("missing tmpfs: %q", s)
	}
	if !strings.Contains(s, "proc[rw]") {
		t.Errorf("missing proc: %q", s)
	}
}
