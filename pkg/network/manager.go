package network

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-iptables/iptables"

	"github.com/minidock/minidock/pkg/ipam"
	"github.com/minidock/minidock/pkg/logger"
)

// Manager owns network configs, the address pool and the host side devices
type Manager struct {
	Store         *Store
	IPAM          *ipam.Allocator
	DefaultName   string
	DefaultSubnet string

	fwOnce sync.Once
	fw     firewall
	fwErr  error
	log    *log.Logger
}

// NewManager creates a manager keeping configs in dir and addresses in
// ipamFile
func NewManager(dir, ipamFile, defaultName, defaultSubnet string) *Manager {
	return &Manager{
		Store:         &Store{Dir: dir},
		IPAM:          ipam.New(ipamFile),
		DefaultName:   defaultName,
		DefaultSubnet: defaultSubnet,
		log:           logger.For("network"),
	}
}

func (m *Manager) firewall() (firewall, error) {
	m.fwOnce.Do(func() {
		if m.fw != nil {
			return
		}
		ipt, err := iptables.New()
		if err != nil {
			m.fwErr = fmt.Errorf("network: iptables: %w", err)
			return
		}
		m.fw = ipt
	})
	return m.fw, m.fwErr
}

// Create validates and persists a new bridge network and brings up its
// bridge. A failure after the bridge exists deletes it again.
func (m *Manager) Create(name, driver, subnet string) (nw *Network, err error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if driver != DriverBridge {
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}
	if err := validateSubnet(subnet); err != nil {
		return nil, err
	}
	gw, err := ipam.Gateway(subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubnet, err)
	}

	unlock, err := m.Store.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if m.Store.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	nw = &Network{Name: name, Subnet: subnet, Driver: driver, Gateway: gw}

	created, err := m.CreateBridge(nw)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && created {
			if derr := m.DeleteBridge(nw); derr != nil {
				m.log.Warn("undo bridge failed", "name", name, "err", derr)
			}
		}
	}()
	if err = m.Store.Save(nw); err != nil {
		return nil, err
	}
	m.log.Info("network created", "name", name, "subnet", subnet, "gateway", gw)
	return nw, nil
}

// EnsureDefault creates the default network unless it already exists
func (m *Manager) EnsureDefault() (*Network, error) {
	nw, err := m.Store.Load(m.DefaultName)
	if err == nil {
		return nw, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	nw, err = m.Create(m.DefaultName, DriverBridge, m.DefaultSubnet)
	if errors.Is(err, ErrExists) {
		return m.Store.Load(m.DefaultName)
	}
	return nw, err
}

// List returns all known networks
func (m *Manager) List() ([]Network, error) {
	return m.Store.List()
}

// Lookup returns the network called name, creating the default network on
// first use
func (m *Manager) Lookup(name string) (*Network, error) {
	if name == m.DefaultName {
		return m.EnsureDefault()
	}
	return m.Store.Load(name)
}

// Remove deletes the bridge, its rules, its address pool and its config.
// Every step is attempted.
func (m *Manager) Remove(name string) error {
	unlock, err := m.Store.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	nw, err := m.Store.Load(name)
	if err != nil {
		return err
	}
	var errs []error
	if err := m.DeleteBridge(nw); err != nil {
		errs = append(errs, err)
	}
	if err := m.IPAM.ReleaseSubnet(nw.Subnet); err != nil {
		errs = append(errs, err)
	}
	if err := m.Store.Remove(name); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("network: remove %s: %w", name, err)
	}
	m.log.Info("network removed", "name", name)
	return nil
}
