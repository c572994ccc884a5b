package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
)

// ErrV2Unsupported is returned when the hierarchy at root is cgroup v2
var ErrV2Unsupported = errors.New("cgroup: cgroup v2 hierarchy is not supported")

// Builder builds cgroup directories
// available: cpu, cpuset, memory
type Builder struct {
	Root   string
	Prefix string

	Controllers
}

// NewBuilder return a dumb builder without any controller
func NewBuilder(root, prefix string) *Builder {
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{
		Root:   root,
		Prefix: prefix,
	}
}

// NewBuilderFor enables the controllers the resources need: memory always,
// cpu only with shares and cpuset only with a cpu list
func NewBuilderFor(root, prefix string, r Resources) *Builder {
	b := NewBuilder(root, prefix).WithMemory()
	if r.CPUShares != "" {
		b.WithCPU()
	}
	if r.CPUSet != "" {
		b.WithCPUSet()
	}
	return b
}

// WithCPU includes cpu cgroup
func (b *Builder) WithCPU() *Builder {
	b.CPU = true
	return b
}

// WithCPUSet includes cpuset cgroup
func (b *Builder) WithCPUSet() *Builder {
	b.CPUSet = true
	return b
}

// WithMemory includes memory cgroup
func (b *Builder) WithMemory() *Builder {
	b.Memory = true
	return b
}

// FilterByEnv reads /proc/cgroups and filter out non-exists ones
func (b *Builder) FilterByEnv() (*Builder, error) {
	m, err := GetAvailableControllerV1()
	if err != nil {
		return b, err
	}
	b.Intersect(m)
	return b, nil
}

// String prints the build properties
func (b *Builder) String() string {
	return fmt.Sprintf("cgroup builder(%s/%s): [%s]", b.Root, b.Prefix, strings.Join(b.Names(), ", "))
}

// Build creates the cgroup directories for the container id. Directories
// created before a failure are removed again.
func (b *Builder) Build(id string) (cg *CgroupV1, err error) {
	if id == "" || strings.ContainsRune(id, '/') {
		return nil, fmt.Errorf("cgroup.builder: invalid name %q", id)
	}
	if DetectType(b.Root) == CgroupTypeV2 {
		return nil, ErrV2Unsupported
	}
	v1 := b.Open(id)
	defer func() {
		if err != nil {
			v1.Destroy()
		}
	}()
	for _, c := range v1.all {
		if err = os.MkdirAll(c.path, dirPerm); err != nil {
			return nil, fmt.Errorf("cgroup.builder: mkdir %s: %w", c.path, err)
		}
	}
	return v1, nil
}

// Open returns the handle of an existing cgroup without touching the
// filesystem, used to clean up after a container
func (b *Builder) Open(id string) *CgroupV1 {
	v1 := &CgroupV1{
		prefix: path.Join(b.Prefix, id),
	}
	for _, c := range []struct {
		enabled bool
		name    string
		ctl     **v1controller
	}{
		{b.Memory, Memory, &v1.memory},
		{b.CPU, CPU, &v1.cpu},
		{b.CPUSet, CPUSet, &v1.cpuset},
	} {
		if !c.enabled {
			continue
		}
		*c.ctl = &v1controller{path: path.Join(b.Root, c.name, b.Prefix, id)}
		v1.all = append(v1.all, *c.ctl)
	}
	return v1
}
