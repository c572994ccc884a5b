package cgroup

const (
	// systemd mounted cgroups
	DefaultRoot     = "/sys/fs/cgroup"
	cgroupProcs     = "cgroup.procs"
	procCgroupsPath = "/proc/cgroups"

	filePerm = 0644
	dirPerm  = 0755

	CPU    = "cpu"
	CPUSet = "cpuset"
	Memory = "memory"

	// numa node written to cpuset.mems
	defaultMems = "0"
)

// CgroupType is the mounted hierarchy type
type CgroupType int

const (
	CgroupTypeV1 = iota + 1
	CgroupTypeV2
)

func (t CgroupType) String() string {
	switch t {
	case CgroupTypeV1:
		return "v1"
	case CgroupTypeV2:
		return "v2"
	default:
		return "invalid"
	}
}
