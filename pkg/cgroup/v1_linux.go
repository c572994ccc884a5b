package cgroup

import (
	"errors"
	"os"
	"strings"
)

// CgroupV1 is the combination of v1 controllers
type CgroupV1 struct {
	prefix string

	cpu    *v1controller
	cpuset *v1controller
	memory *v1controller

	all []*v1controller
}

func (c *CgroupV1) String() string {
	names := make([]string, 0, len(c.all))
	for _, v := range []struct {
		now  *v1controller
		name string
	}{
		{c.memory, Memory},
		{c.cpu, CPU},
		{c.cpuset, CPUSet},
	} {
		if v.now != nil {
			names = append(names, v.name)
		}
	}
	return "v1(" + c.prefix + ")[" + strings.Join(names, ", ") + "]"
}

// Apply writes the limits and attaches pid, one controller at a time
func (c *CgroupV1) Apply(pid int, r Resources) error {
	if c.memory != nil {
		if err := c.SetMemoryLimit(r.MemoryBytes); err != nil {
			return err
		}
		if err := c.memory.AddProc(pid); err != nil {
			return err
		}
	}
	if c.cpu != nil && r.CPUShares != "" {
		if err := c.SetCPUShares(r.CPUShares); err != nil {
			return err
		}
		if err := c.cpu.AddProc(pid); err != nil {
			return err
		}
	}
	if c.cpuset != nil && r.CPUSet != "" {
		if err := c.SetCPUSet(r.CPUSet); err != nil {
			return err
		}
		if err := c.cpuset.AddProc(pid); err != nil {
			return err
		}
	}
	return nil
}

// Processes lists all existing process pid from the cgroup
func (c *CgroupV1) Processes() ([]int, error) {
	if len(c.all) == 0 {
		return nil, os.ErrInvalid
	}
	return c.all[0].Processes()
}

// Destroy removes dir for controllers, the first error is returned but every
// controller is tried
func (c *CgroupV1) Destroy() error {
	var errs []error
	for _, s := range c.all {
		if err := remove(s.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetMemoryLimit write memory.limit_in_bytes
func (c *CgroupV1) SetMemoryLimit(i uint64) error {
	return c.memory.WriteUint("memory.limit_in_bytes", i)
}

// MemoryUsage read memory.usage_in_bytes
func (c *CgroupV1) MemoryUsage() (uint64, error) {
	return c.memory.ReadUint("memory.usage_in_bytes")
}

// SetCPUShares write cpu.shares
func (c *CgroupV1) SetCPUShares(shares string) error {
	return c.cpu.WriteFile("cpu.shares", []byte(shares))
}

// SetCPUSet writes cpuset.mems and then cpuset.cpus. The kernel refuses to
// attach tasks to a cpuset whose mems are empty.
func (c *CgroupV1) SetCPUSet(cpus string) error {
	if err := c.SetCpusetMems(defaultMems); err != nil {
		return err
	}
	return c.cpuset.WriteFile("cpuset.cpus", []byte(cpus))
}

// SetCpusetMems set cpuset.mems
func (c *CgroupV1) SetCpusetMems(mems string) error {
	return c.cpuset.WriteFile("cpuset.mems", []byte(mems))
}
