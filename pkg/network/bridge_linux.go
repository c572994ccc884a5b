package network

import (
	"errors"
	"fmt"
	"os"

	"github.com/vishvananda/netlink"
)

const ipForwardPath = "/proc/sys/net/ipv4/ip_forward"

func isLinkNotFound(err error) bool {
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf)
}

func linkExists(name string) bool {
	_, err := netlink.LinkByName(name)
	return err == nil
}

// CreateBridge brings up the bridge of nw with the gateway address and
// installs its NAT and forwarding rules. It reports whether the bridge
// device was created by this call.
func (m *Manager) CreateBridge(nw *Network) (created bool, err error) {
	br, err := netlink.LinkByName(nw.Name)
	switch {
	case err == nil:
		m.log.Debug("bridge exists", "name", nw.Name)
	case isLinkNotFound(err):
		br, err = m.addBridge(nw)
		if err != nil {
			return false, err
		}
		created = true
	default:
		return false, fmt.Errorf("network: lookup bridge %s: %w", nw.Name, err)
	}
	defer func() {
		if err != nil && created {
			netlink.LinkDel(br)
		}
	}()

	if err = netlink.LinkSetUp(br); err != nil {
		return created, fmt.Errorf("network: bridge %s up: %w", nw.Name, err)
	}
	if err = os.WriteFile(ipForwardPath, []byte("1"), 0644); err != nil {
		return created, fmt.Errorf("network: enable ip_forward: %w", err)
	}
	fw, err := m.firewall()
	if err != nil {
		return created, err
	}
	if err = appendRules(fw, bridgeRules(nw.Name, nw.Subnet)); err != nil {
		return created, fmt.Errorf("network: bridge %s rules: %w", nw.Name, err)
	}
	m.log.Info("bridge ready", "name", nw.Name, "gateway", nw.Gateway, "created", created)
	return created, nil
}

func (m *Manager) addBridge(nw *Network) (netlink.Link, error) {
	ones, err := nw.prefixLen()
	if err != nil {
		return nil, err
	}
	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", nw.Gateway, ones))
	if err != nil {
		return nil, fmt.Errorf("network: gateway %s: %w", nw.Gateway, err)
	}
	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: nw.Name}}
	if err := netlink.LinkAdd(br); err != nil {
		return nil, fmt.Errorf("network: add bridge %s: %w", nw.Name, err)
	}
	link, err := netlink.LinkByName(nw.Name)
	if err != nil {
		netlink.LinkDel(br)
		return nil, fmt.Errorf("network: lookup bridge %s: %w", nw.Name, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && !errors.Is(err, os.ErrExist) {
		netlink.LinkDel(link)
		return nil, fmt.Errorf("network: bridge %s addr: %w", nw.Name, err)
	}
	return link, nil
}

// DeleteBridge removes the bridge device and its rules. A missing device is
// not an error.
func (m *Manager) DeleteBridge(nw *Network) error {
	var errs []error
	br, err := netlink.LinkByName(nw.Name)
	switch {
	case err == nil:
		if err := netlink.LinkDel(br); err != nil {
			errs = append(errs, fmt.Errorf("network: delete bridge %s: %w", nw.Name, err))
		}
	case !isLinkNotFound(err):
		errs = append(errs, fmt.Errorf("network: lookup bridge %s: %w", nw.Name, err))
	}
	if fw, err := m.firewall(); err != nil {
		errs = append(errs, err)
	} else if err := deleteRules(fw, bridgeRules(nw.Name, nw.Subnet)); err != nil {
		errs = append(errs, fmt.Errorf("network: bridge %s rules: %w", nw.Name, err))
	}
	return errors.Join(errs...)
}
