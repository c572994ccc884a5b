package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minidock/minidock/pkg/network"
	"github.com/minidock/minidock/pkg/state"
)

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"100", 100 << 20, false},
		{"64m", 64 << 20, false},
		{"1g", 1 << 30, false},
		{"512k", 512 << 10, false},
		{"lots", 0, true},
		{"0b", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMemory(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunFlagsStopAtCommand(t *testing.T) {
	fs := newRunCmd(&app{}).Flags()
	err := fs.Parse([]string{"--mem", "100", "-e", "A=1", "-e", "B=2", "--name", "web", "-d", "sh", "-c", "echo -d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "echo -d"}, fs.Args())
	env, err := fs.GetStringArray("env")
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=2"}, env)
	detach, err := fs.GetBool("detach")
	require.NoError(t, err)
	assert.True(t, detach)
}

func TestRunOptions(t *testing.T) {
	f := &runFlags{
		mem:    "100",
		cpu:    "512",
		cpuset: "0-1",
		volume: "/tmp:/data",
		env:    []string{"A=1"},
		net:    "testbr0",
		ports:  []string{"8080:80"},
		name:   "web",
		detach: true,
	}
	opts, err := f.options([]string{"/bin/sh"})
	require.NoError(t, err)
	assert.Equal(t, uint64(100<<20), opts.Resources.MemoryBytes)
	assert.Equal(t, "512", opts.Resources.CPUShares)
	assert.Equal(t, "0-1", opts.Resources.CPUSet)
	assert.Equal(t, "/tmp:/data", opts.Volume)
	assert.Equal(t, []string{"A=1"}, opts.Env)
	assert.Equal(t, "testbr0", opts.Network)
	assert.Equal(t, []string{"8080:80"}, opts.Ports)
	assert.Equal(t, "web", opts.Name)
	assert.True(t, opts.Detach)
	assert.Equal(t, []string{"/bin/sh"}, opts.Args)

	_, err = (&runFlags{mem: "huge"}).options([]string{"sh"})
	assert.Error(t, err)
	_, err = (&runFlags{commit: "img", detach: true}).options([]string{"sh"})
	assert.Error(t, err)
	_, err = (&runFlags{ports: []string{"80:80"}}).options([]string{"sh"})
	assert.Error(t, err)
}

func TestWriteRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	recs := []*state.Record{
		{
			ID: "a1b2c3d4e5", Name: "web", PID: "4242", Command: "sh -c top",
			CreatedAt: now.Add(-2 * time.Minute).Format(state.TimeFormat),
			Status:    state.Running,
		},
		{
			ID: "f6a7b8c9d0", Name: "job", Command: "false",
			CreatedAt: "garbage", Status: state.Exited, ExitCode: 1,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, recs, map[string]uint64{"web": 3 << 20}, now))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "NAME", "PID", "STATUS", "COMMAND", "CREATED", "MEMORY"}, strings.Fields(lines[0]))
	assert.Contains(t, lines[1], "4242")
	assert.Contains(t, lines[1], "2 minutes ago")
	assert.Contains(t, lines[1], "3MiB")
	assert.True(t, strings.HasSuffix(lines[2], "-"))
	assert.Contains(t, lines[2], "exited (1)")
	assert.Contains(t, lines[2], "garbage")
}

func TestWriteNetworks(t *testing.T) {
	var buf bytes.Buffer
	nws := []network.Network{{Name: "testbr0", Subnet: "10.0.0.0/24", Driver: network.DriverBridge}}
	require.NoError(t, writeNetworks(&buf, nws))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"NAME", "IP", "RANGE", "DRIVER"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"testbr0", "10.0.0.0/24", "bridge"}, strings.Fields(lines[1]))
}

func writeTestConfig(t *testing.T) string {
	dir := t.TempDir()
	cfg := strings.Join([]string{
		"root_dir: " + filepath.Join(dir, "root"),
		"state_dir: " + filepath.Join(dir, "state"),
		"network_dir: " + filepath.Join(dir, "network"),
		"ipam_file: " + filepath.Join(dir, "ipam", "subnet.json"),
		"cgroup_root: " + filepath.Join(dir, "cgroup"),
		"log_level: error",
	}, "\n")
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cfg), 0644))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", writeTestConfig(t)}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	out, err := execute(t, "ps")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "NAME", "PID", "STATUS", "COMMAND", "CREATED", "MEMORY"}, strings.Fields(out))

	out, err = execute(t, "network", "ls")
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME", "IP", "RANGE", "DRIVER"}, strings.Fields(out))

	_, err = execute(t, "stop", "missing")
	assert.ErrorIs(t, err, state.ErrNotFound)

	_, err = execute(t, "rm", "missing")
	assert.ErrorIs(t, err, state.ErrNotFound)

	_, err = execute(t, "network", "rm", "missing")
	assert.ErrorIs(t, err, network.ErrNotFound)

	_, err = execute(t, "network", "create", "--driver", "overlay", "--subnet", "10.0.0.0/24", "n1")
	assert.ErrorIs(t, err, network.ErrDriver)

	_, err = execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "logs")
	assert.Error(t, err)

	_, err = execute(t, "init")
	assert.ErrorContains(t, err, strconv.Itoa(os.Getpid()))
}

func TestBadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "ps"})
	assert.Error(t, cmd.Execute())
}
