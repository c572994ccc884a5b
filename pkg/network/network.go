// Package network manages bridge networks and wires containers into them:
// bridge devices with NAT, veth pairs moved into the container's network
// namespace, addresses handed out by ipam and DNAT port mappings.
package network

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/minidock/minidock/pkg/ipam"
)

// DriverBridge is the only supported driver
const DriverBridge = "bridge"

// ContainerIfName is the name of the interface inside the container
const ContainerIfName = "eth0"

// maximum interface name length without the trailing NUL
const ifNameMax = 15

var (
	// ErrNotFound is returned when a network has no config
	ErrNotFound = errors.New("network: not found")
	// ErrExists is returned when creating a network that already has a config
	ErrExists = errors.New("network: already exists")
	// ErrDriver is returned for drivers other than bridge
	ErrDriver = errors.New("network: unsupported driver")
	// ErrSubnet is returned for malformed subnets
	ErrSubnet = errors.New("network: invalid subnet")
)

// Network is the persisted definition of a bridge network. The bridge device
// carries the network name.
type Network struct {
	Name    string `json:"name"`
	Subnet  string `json:"ip_range"`
	Driver  string `json:"driver"`
	Gateway string `json:"gateway"`
}

// Endpoint is the attachment of one container to a network
type Endpoint struct {
	ID           string   `json:"id"`
	Network      string   `json:"network"`
	Subnet       string   `json:"subnet"`
	IP           string   `json:"ip"`
	MAC          string   `json:"mac"`
	Gateway      string   `json:"gateway"`
	HostVeth     string   `json:"host_veth"`
	PortMappings []string `json:"port_mappings,omitempty"`
}

func (n Network) String() string {
	return fmt.Sprintf("network[%s,%s,%s]", n.Name, n.Driver, n.Subnet)
}

// prefixLen returns the mask length of the subnet
func (n Network) prefixLen() (int, error) {
	_, ipnet, err := net.ParseCIDR(n.Subnet)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSubnet, err)
	}
	ones, _ := ipnet.Mask.Size()
	return ones, nil
}

func validateName(name string) error {
	if name == "" || len(name) > ifNameMax || strings.ContainsAny(name, "/ \t\n") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("network: invalid name %q", name)
	}
	return nil
}

// validateSubnet requires a prefix ("/") and a parsable IPv4 CIDR
func validateSubnet(subnet string) error {
	if !strings.Contains(subnet, "/") {
		return fmt.Errorf("%w: %q has no prefix length", ErrSubnet, subnet)
	}
	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubnet, err)
	}
	if ip.To4() == nil {
		return fmt.Errorf("%w: %q is not IPv4", ErrSubnet, subnet)
	}
	if ones, _ := ipnet.Mask.Size(); ones > ipam.MaxPrefix {
		return fmt.Errorf("%w: %q leaves no address for containers", ErrSubnet, subnet)
	}
	return nil
}
