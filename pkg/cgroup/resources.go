package cgroup

// Resources are the limits applied to a container
type Resources struct {
	// MemoryBytes is written to memory.limit_in_bytes
	MemoryBytes uint64 `json:"memory_bytes"`
	// CPUShares is the relative cpu weight, the kernel default is 1024
	CPUShares string `json:"cpu_shares,omitempty"`
	// CPUSet pins the container to cpus, e.g. "0", "0,2" or "0-3"
	CPUSet string `json:"cpuset,omitempty"`
}
