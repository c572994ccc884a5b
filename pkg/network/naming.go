package network

import (
	"fmt"
	"hash/fnv"
	"net"
	"strconv"
	"strings"
)

const (
	vethPrefix = "veth"
	peerPrefix = "ceth"
	shortLen   = 8
)

// VethName derives the host side veth name from the container id. The short
// form is used unless another link already owns it, then the full id is
// used. A link already carrying the full form can only be left over from
// this same container and is reported as stale.
func VethName(id string, exists func(string) bool) (name string, stale bool) {
	full := vethPrefix + truncate(id, ifNameMax-len(vethPrefix))
	short := vethPrefix + truncate(id, shortLen)
	if !exists(short) {
		return short, false
	}
	if short == full {
		return short, true
	}
	return full, exists(full)
}

// peerName is the temporary host side name of the container end
func peerName(id string) string {
	return peerPrefix + truncate(id, ifNameMax-len(peerPrefix))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// MAC derives a locally administered unicast address from the container id
func MAC(id string) net.HardwareAddr {
	h := fnv.New64a()
	h.Write([]byte(id))
	v := h.Sum64()
	return net.HardwareAddr{
		0x02,
		byte(v >> 32),
		byte(v >> 24),
		byte(v >> 16),
		byte(v >> 8),
		byte(v),
	}
}

// PortMapping is a host port forwarded to a container port
type PortMapping struct {
	Host, Container int
}

func (p PortMapping) String() string {
	return strconv.Itoa(p.Host) + ":" + strconv.Itoa(p.Container)
}

// ParsePortMapping parses "hostPort:containerPort"
func ParsePortMapping(s string) (PortMapping, error) {
	h, c, ok := strings.Cut(s, ":")
	if !ok {
		return PortMapping{}, fmt.Errorf("network: port mapping %q: missing ':'", s)
	}
	hp, err := parsePort(h)
	if err != nil {
		return PortMapping{}, fmt.Errorf("network: port mapping %q: %w", s, err)
	}
	cp, err := parsePort(c)
	if err != nil {
		return PortMapping{}, fmt.Errorf("network: port mapping %q: %w", s, err)
	}
	return PortMapping{Host: hp, Container: cp}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}
