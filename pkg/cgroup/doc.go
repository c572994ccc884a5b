// Package cgroup creates per container cgroup v1 directories under the
// controller hierarchies mounted at /sys/fs/cgroup and writes resource limits
// into them.
//
// Available cgroup controller:
//
//	cpu
//	cpuset
//	memory
//
// Every cgroup lives at <root>/<controller>/<prefix>/<container id>.
package cgroup
