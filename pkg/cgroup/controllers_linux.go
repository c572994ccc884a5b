package cgroup

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// Controllers is the set of controllers a cgroup is made of
type Controllers struct {
	CPU    bool
	CPUSet bool
	Memory bool
}

// Set enables or disables a controller by name, unknown names are ignored
func (c *Controllers) Set(ct string, value bool) {
	switch ct {
	case CPU:
		c.CPU = value
	case CPUSet:
		c.CPUSet = value
	case Memory:
		c.Memory = value
	}
}

// Intersect keeps only the controllers enabled in both sets
func (c *Controllers) Intersect(o *Controllers) {
	c.CPU = c.CPU && o.CPU
	c.CPUSet = c.CPUSet && o.CPUSet
	c.Memory = c.Memory && o.Memory
}

// Names returns the enabled controller names in creation order
func (c *Controllers) Names() []string {
	names := make([]string, 0, 3)
	for _, v := range []struct {
		e bool
		n string
	}{
		{c.Memory, Memory},
		{c.CPU, CPU},
		{c.CPUSet, CPUSet},
	} {
		if v.e {
			names = append(names, v.n)
		}
	}
	return names
}

func (c *Controllers) String() string {
	return "[" + strings.Join(c.Names(), ", ") + "]"
}

// Info reads the cgroup mount info from /proc/cgroups
type Info struct {
	Hierarchy  int
	NumCgroups int
	Enabled    bool
}

// GetCgroupV1Info read /proc/cgroups and return the result
func GetCgroupV1Info() (map[string]Info, error) {
	f, err := os.Open(procCgroupsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCgroupV1Info(f)
}

func parseCgroupV1Info(r io.Reader) (map[string]Info, error) {
	rt := make(map[string]Info)
	s := bufio.NewScanner(r)
	for s.Scan() {
		text := s.Text()
		if text == "" || text[0] == '#' {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) < 4 {
			continue
		}

		// format: subsys_name hierarchy num_cgroups enabled
		hierarchy, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, err
		}
		numCgroups, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, err
		}
		rt[parts[0]] = Info{
			Hierarchy:  hierarchy,
			NumCgroups: numCgroups,
			Enabled:    parts[3] != "0",
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return rt, nil
}

// GetAvailableControllerV1 reads /proc/cgroups and get all available controller as set
func GetAvailableControllerV1() (*Controllers, error) {
	info, err := GetCgroupV1Info()
	if err != nil {
		return nil, err
	}
	return availableFromInfo(info), nil
}

func availableFromInfo(info map[string]Info) *Controllers {
	rt := &Controllers{}
	for k, v := range info {
		if v.Enabled {
			rt.Set(k, true)
		}
	}
	return rt
}
