package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readString(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(b))
}

func TestApplyWritesLimits(t *testing.T) {
	root := t.TempDir()
	r := Resources{MemoryBytes: 50 << 20, CPUShares: "512", CPUSet: "0-1"}
	cg, err := NewBuilderFor(root, "minidock", r).Build("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if err := cg.Apply(4242, r); err != nil {
		t.Fatal(err)
	}

	mem := filepath.Join(root, Memory, "minidock", "abc123")
	if got := readString(t, filepath.Join(mem, "memory.limit_in_bytes")); got != strconv.Itoa(50<<20) {
		t.Errorf("memory.limit_in_bytes = %s", got)
	}
	cpu := filepath.Join(root, CPU, "minidock", "abc123")
	if got := readString(t, filepath.Join(cpu, "cpu.shares")); got != "512" {
		t.Errorf("cpu.shares = %s", got)
	}
	set := filepath.Join(root, CPUSet, "minidock", "abc123")
	if got := readString(t, filepath.Join(set, "cpuset.mems")); got != "0" {
		t.Errorf("cpuset.mems = %s", got)
	}
	if got := readString(t, filepath.Join(set, "cpuset.cpus")); got != "0-1" {
		t.Errorf("cpuset.cpus = %s", got)
	}
	for _, d := range []string{mem, cpu, set} {
		if got := readString(t, filepath.Join(d, cgroupProcs)); got != "4242" {
			t.Errorf("%s/cgroup.procs = %s", d, got)
		}
	}
}

func TestApplyCpusetMemsBeforeCpus(t *testing.T) {
	root := t.TempDir()
	r := Resources{MemoryBytes: 1 << 20, CPUSet: "0"}
	cg, err := NewBuilderFor(root, "minidock", r).Build("order")
	if err != nil {
		t.Fatal(err)
	}
	set := filepath.Join(root, CPUSet, "minidock", "order")
	// a directory in place of cpuset.cpus makes that write fail
	if err := os.Mkdir(filepath.Join(set, "cpuset.cpus"), dirPerm); err != nil {
		t.Fatal(err)
	}
	if err := cg.Apply(1, r); err == nil {
		t.Fatal("expected cpuset.cpus write to fail")
	}
	if got := readString(t, filepath.Join(set, "cpuset.mems")); got != "0" {
		t.Errorf("cpuset.mems was not written before cpuset.cpus, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(set, cgroupProcs)); !os.IsNotExist(err) {
		t.Errorf("pid attached to cpuset before cpus were set")
	}
}

func TestBuilderControllersFollowResources(t *testing.T) {
	b := NewBuilderFor("/x", "p", Resources{MemoryBytes: 1})
	if !b.Memory || b.CPU || b.CPUSet {
		t.Errorf("unexpected controllers %v", b.Names())
	}
	b = NewBuilderFor("/x", "p", Resources{CPUShares: "2", CPUSet: "1"})
	if !b.Memory || !b.CPU || !b.CPUSet {
		t.Errorf("unexpected controllers %v", b.Names())
	}
}

func TestBuildKeyedByID(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "minidock").WithMemory()
	a, err := b.Build("aaaa")
	if err != nil {
		t.Fatal(err)
	}
	c, err := b.Build("bbbb")
	if err != nil {
		t.Fatal(err)
	}
	if a.memory.path == c.memory.path {
		t.Errorf("two containers share %s", a.memory.path)
	}
	if _, err := b.Build("../escape"); err == nil {
		t.Errorf("expected invalid name error")
	}
}

func TestDestroy(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root, "minidock").WithMemory().WithCPU()
	cg, err := b.Build("gone")
	if err != nil {
		t.Fatal(err)
	}
	if err := cg.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, Memory, "minidock", "gone")); !os.IsNotExist(err) {
		t.Errorf("memory cgroup not removed")
	}
	// destroying twice is fine
	if err := b.Open("gone").Destroy(); err != nil {
		t.Errorf("second destroy: %v", err)
	}
}

func TestParseCgroupV1Info(t *testing.T) {
	const procCgroups = `#subsys_name	hierarchy	num_cgroups	enabled
cpuset	2	4	1
cpu	3	60	1
cpuacct	3	60	1
memory	4	90	0
`
	info, err := parseCgroupV1Info(strings.NewReader(procCgroups))
	if err != nil {
		t.Fatal(err)
	}
	if info["cpu"].Hierarchy != 3 || info["cpu"].NumCgroups != 60 || !info["cpu"].Enabled {
		t.Errorf("unexpected cpu info %+v", info["cpu"])
	}
	c := availableFromInfo(info)
	if !c.CPU || !c.CPUSet || c.Memory {
		t.Errorf("unexpected controllers %v", c)
	}
}

func TestRealCgroup(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	if DetectType(DefaultRoot) != CgroupTypeV1 {
		t.Skip("cgroup v1 is not mounted")
	}
	b, err := NewBuilder(DefaultRoot, "minidock-test").WithMemory().WithCPU().FilterByEnv()
	if err != nil {
		t.Fatal(err)
	}
	cg, err := b.Build("t" + strconv.Itoa(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	defer cg.Destroy()
	t.Log(cg)
	if err := cg.SetMemoryLimit(64 << 20); err != nil {
		t.Fatal(err)
	}
}

func TestDestroyAfterApply(t *testing.T) {
	root := t.TempDir()
	r := Resources{MemoryBytes: 1 << 20, CPUShares: "256"}
	cg, err := NewBuilderFor(root, "minidock", r).Build("used")
	if err != nil {
		t.Fatal(err)
	}
	if err := cg.Apply(77, r); err != nil {
		t.Fatal(err)
	}
	if err := cg.Destroy(); err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{Memory, CPU} {
		if _, err := os.Stat(filepath.Join(root, c, "minidock", "used")); !os.IsNotExist(err) {
			t.Errorf("%s cgroup not removed", c)
		}
	}
}

func TestProcessesAndMemoryUsage(t *testing.T) {
	root := t.TempDir()
	r := Resources{MemoryBytes: 1 << 20}
	b := NewBuilderFor(root, "minidock", r)
	cg, err := b.Build("stats")
	if err != nil {
		t.Fatal(err)
	}
	if err := cg.Apply(4242, r); err != nil {
		t.Fatal(err)
	}
	mem := filepath.Join(root, Memory, "minidock", "stats")
	if err := os.WriteFile(filepath.Join(mem, "memory.usage_in_bytes"), []byte("12345\n"), filePerm); err != nil {
		t.Fatal(err)
	}

	// a fresh handle reads what the container left behind
	cg = b.Open("stats")
	pids, err := cg.Processes()
	if err != nil {
		t.Fatal(err)
	}
	if len(pids) != 1 || pids[0] != 4242 {
		t.Errorf("Processes() = %v", pids)
	}
	usage, err := cg.MemoryUsage()
	if err != nil {
		t.Fatal(err)
	}
	if usage != 12345 {
		t.Errorf("MemoryUsage() = %d", usage)
	}

	if _, err := b.Open("missing").Processes(); !os.IsNotExist(err) {
		t.Errorf("Processes() of a missing cgroup: %v", err)
	}
}
