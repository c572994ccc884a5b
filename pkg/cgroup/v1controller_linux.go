package cgroup

import (
	"errors"
	"path"
	"strconv"
	"strings"
)

// v1controller is the accessor for single cgroup resource with given path
type v1controller struct {
	path string
}

// ErrNotInitialized returned when trying to read from not initialized cgroup
var ErrNotInitialized = errors.New("cgroup was not initialized")

// WriteUint writes uint64 into given file
func (c *v1controller) WriteUint(filename string, i uint64) error {
	return c.WriteFile(filename, []byte(strconv.FormatUint(i, 10)))
}

// ReadUint read uint64 from given file
func (c *v1controller) ReadUint(filename string) (uint64, error) {
	b, err := c.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

// WriteFile writes cgroup file and handles potential EINTR error while writes to
// the slow device (cgroup)
func (c *v1controller) WriteFile(name string, content []byte) error {
	if c == nil || c.path == "" {
		return ErrNotInitialized
	}
	return writeFile(path.Join(c.path, name), content, filePerm)
}

// ReadFile reads cgroup file and handles potential EINTR error while read to
// the slow device (cgroup)
func (c *v1controller) ReadFile(name string) ([]byte, error) {
	if c == nil || c.path == "" {
		return nil, ErrNotInitialized
	}
	return readFile(path.Join(c.path, name))
}

// AddProc writes the pids into cgroup.procs one by one
func (c *v1controller) AddProc(pids ...int) error {
	for _, pid := range pids {
		if err := c.WriteFile(cgroupProcs, []byte(strconv.Itoa(pid))); err != nil {
			return err
		}
	}
	return nil
}

// Processes lists the pids in cgroup.procs
func (c *v1controller) Processes() ([]int, error) {
	b, err := c.ReadFile(cgroupProcs)
	if err != nil {
		return nil, err
	}
	var rt []int
	for _, f := range strings.Fields(string(b)) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		rt = append(rt, pid)
	}
	return rt, nil
}
