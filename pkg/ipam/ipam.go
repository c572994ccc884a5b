// Package ipam hands out container addresses from a subnet. The allocation
// state of every subnet is a bitmap string persisted in a single JSON file.
// Each call locks the file, reloads it, applies the change and writes it back.
package ipam

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/minidock/minidock/pkg/logger"
)

// ErrExhausted is returned when a subnet has no free address left
var ErrExhausted = errors.New("ipam: no available address")

const (
	allocated = '1'
	free      = '0'

	// usable host count of a /24, any other prefix gets at most defaultUsable
	usable24      = 254
	defaultUsable = 30

	// MaxPrefix leaves room for the gateway and one container
	MaxPrefix = 30
)

// Allocator persists subnet bitmaps at Path
type Allocator struct {
	Path string
}

// New creates an allocator backed by the file at path
func New(path string) *Allocator {
	return &Allocator{Path: path}
}

// Allocate reserves the lowest free address of subnet. Index 0 stands for the
// gateway (.1) and is never handed out, so the first address is .2.
func (a *Allocator) Allocate(subnet string) (string, error) {
	ipnet, err := parseSubnet(subnet)
	if err != nil {
		return "", err
	}
	var ip string
	err = a.update(func(m map[string]string) (bool, error) {
		key := ipnet.String()
		bitmap, ok := m[key]
		if !ok {
			bitmap = strings.Repeat(string(free), usableCount(ipnet))
		}
		b := []byte(bitmap)
		for i := 1; i < len(b) && i < usableCount(ipnet); i++ {
			if b[i] == free {
				b[i] = allocated
				m[key] = string(b)
				ip = addressAt(ipnet, i).String()
				return true, nil
			}
		}
		return false, fmt.Errorf("%w in %s", ErrExhausted, key)
	})
	if err != nil {
		return "", err
	}
	logger.For("ipam").Debug("allocated", "subnet", ipnet, "ip", ip)
	return ip, nil
}

// Release frees ip in subnet. It reports whether a bit was cleared.
func (a *Allocator) Release(subnet, ip string) (bool, error) {
	ipnet, err := parseSubnet(subnet)
	if err != nil {
		return false, err
	}
	addr := net.ParseIP(ip).To4()
	if addr == nil || !ipnet.Contains(addr) {
		return false, fmt.Errorf("ipam: %q is not an address of %s", ip, ipnet)
	}
	var released bool
	err = a.update(func(m map[string]string) (bool, error) {
		key := ipnet.String()
		b := []byte(m[key])
		i := indexOf(ipnet, addr)
		if i < 1 || i >= len(b) || b[i] != allocated {
			return false, nil
		}
		b[i] = free
		m[key] = string(b)
		released = true
		return true, nil
	})
	if err == nil && released {
		logger.For("ipam").Debug("released", "subnet", ipnet, "ip", ip)
	}
	return released, err
}

// ReleaseSubnet forgets every allocation of subnet
func (a *Allocator) ReleaseSubnet(subnet string) error {
	ipnet, err := parseSubnet(subnet)
	if err != nil {
		return err
	}
	return a.update(func(m map[string]string) (bool, error) {
		if _, ok := m[ipnet.String()]; !ok {
			return false, nil
		}
		delete(m, ipnet.String())
		return true, nil
	})
}

// Allocated returns the bitmap of subnet, empty if the subnet was never used
func (a *Allocator) Allocated(subnet string) (string, error) {
	ipnet, err := parseSubnet(subnet)
	if err != nil {
		return "", err
	}
	lock := flock.New(a.Path + ".lock")
	if err := a.ensureDir(); err != nil {
		return "", err
	}
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("ipam: lock: %w", err)
	}
	defer lock.Unlock()

	m, err := a.load()
	if err != nil {
		return "", err
	}
	return m[ipnet.String()], nil
}

// Gateway returns the first host address of subnet, reserved for the bridge
func Gateway(subnet string) (string, error) {
	ipnet, err := parseSubnet(subnet)
	if err != nil {
		return "", err
	}
	return addressAt(ipnet, 0).String(), nil
}

// update runs fn on the freshly loaded state under an exclusive lock and
// saves the state when fn reports a change
func (a *Allocator) update(fn func(map[string]string) (bool, error)) error {
	if err := a.ensureDir(); err != nil {
		return err
	}
	// a new lock per call, a held flock.Flock would make Lock a no-op
	lock := flock.New(a.Path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("ipam: lock: %w", err)
	}
	defer lock.Unlock()

	m, err := a.load()
	if err != nil {
		return err
	}
	changed, err := fn(m)
	if err != nil || !changed {
		return err
	}
	return a.save(m)
}

func (a *Allocator) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return fmt.Errorf("ipam: mkdir: %w", err)
	}
	return nil
}

func (a *Allocator) load() (map[string]string, error) {
	m := make(map[string]string)
	b, err := os.ReadFile(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ipam: load: %w", err)
	}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("ipam: decode %s: %w", a.Path, err)
	}
	for k, v := range m {
		if strings.Trim(v, "01") != "" {
			return nil, fmt.Errorf("ipam: corrupt bitmap for %s", k)
		}
	}
	return m, nil
}

func (a *Allocator) save(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(a.Path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("ipam: save: %w", err)
	}
	return nil
}

func parseSubnet(subnet string) (*net.IPNet, error) {
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("ipam: %w", err)
	}
	if ipnet.IP.To4() == nil {
		return nil, fmt.Errorf("ipam: %s is not an IPv4 subnet", subnet)
	}
	if ones, _ := ipnet.Mask.Size(); ones > MaxPrefix {
		return nil, fmt.Errorf("ipam: %s is too small, the prefix must be at most /%d", subnet, MaxPrefix)
	}
	return ipnet, nil
}

// usableCount is the bitmap length of ipnet. It never exceeds the host
// count, so the broadcast address is never handed out.
func usableCount(ipnet *net.IPNet) int {
	ones, bits := ipnet.Mask.Size()
	if ones == 24 {
		return usable24
	}
	if hostBits := bits - ones; hostBits < 6 {
		return min(defaultUsable, 1<<hostBits-2)
	}
	return defaultUsable
}

// addressAt maps bitmap index i to the network address + i + 1
func addressAt(ipnet *net.IPNet, i int) net.IP {
	base := binary.BigEndian.Uint32(ipnet.IP.To4())
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, base+uint32(i)+1)
	return ip
}

func indexOf(ipnet *net.IPNet, ip net.IP) int {
	return int(binary.BigEndian.Uint32(ip.To4())-binary.BigEndian.Uint32(ipnet.IP.To4())) - 1
}
