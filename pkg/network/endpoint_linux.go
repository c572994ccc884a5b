package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// Connect attaches the container running as pid to the network: an address
// from the pool, a veth pair with the host end on the bridge and the other
// end configured as eth0 inside the container, then the port mappings.
// Anything created is undone when a later step fails.
func (m *Manager) Connect(id, networkName string, pid int, ports []string) (ep *Endpoint, err error) {
	nw, err := m.Lookup(networkName)
	if err != nil {
		return nil, err
	}
	ones, err := nw.prefixLen()
	if err != nil {
		return nil, err
	}
	br, err := netlink.LinkByName(nw.Name)
	if err != nil {
		if !isLinkNotFound(err) {
			return nil, fmt.Errorf("network: lookup bridge %s: %w", nw.Name, err)
		}
		if _, err = m.CreateBridge(nw); err != nil {
			return nil, err
		}
		if br, err = netlink.LinkByName(nw.Name); err != nil {
			return nil, fmt.Errorf("network: lookup bridge %s: %w", nw.Name, err)
		}
	}

	ip, err := m.IPAM.Allocate(nw.Subnet)
	if err != nil {
		return nil, err
	}
	ep = &Endpoint{
		ID:      id,
		Network: nw.Name,
		Subnet:  nw.Subnet,
		IP:      ip,
		MAC:     MAC(id).String(),
		Gateway: nw.Gateway,
	}
	defer func() {
		if err != nil {
			if _, rerr := m.IPAM.Release(nw.Subnet, ip); rerr != nil {
				m.log.Warn("undo address failed", "ip", ip, "err", rerr)
			}
		}
	}()

	name, stale := VethName(id, linkExists)
	if stale {
		m.log.Warn("removing stale veth", "name", name)
		if l, lerr := netlink.LinkByName(name); lerr == nil {
			netlink.LinkDel(l)
		}
	}
	ep.HostVeth = name
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		PeerName:  peerName(id),
	}
	if err = netlink.LinkAdd(veth); err != nil {
		return nil, fmt.Errorf("network: add veth %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			if derr := deleteLink(name); derr != nil {
				m.log.Warn("undo veth failed", "name", name, "err", derr)
			}
		}
	}()

	host, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("network: lookup veth %s: %w", name, err)
	}
	if err = netlink.LinkSetMaster(host, br); err != nil {
		return nil, fmt.Errorf("network: attach %s to %s: %w", name, nw.Name, err)
	}
	if err = netlink.LinkSetUp(host); err != nil {
		return nil, fmt.Errorf("network: veth %s up: %w", name, err)
	}
	peer, err := netlink.LinkByName(veth.PeerName)
	if err != nil {
		return nil, fmt.Errorf("network: lookup peer %s: %w", veth.PeerName, err)
	}
	if err = netlink.LinkSetNsPid(peer, pid); err != nil {
		return nil, fmt.Errorf("network: move %s to pid %d: %w", veth.PeerName, pid, err)
	}
	addr := &net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, 32)}
	if err = configureContainerSide(pid, veth.PeerName, MAC(id), addr, net.ParseIP(nw.Gateway)); err != nil {
		return nil, err
	}

	ep.PortMappings = m.SetupPortMapping(ip, ports)
	m.log.Info("container connected", "id", id, "network", nw.Name, "ip", ip, "veth", name)
	return ep, nil
}

// configureContainerSide renames and addresses the peer from inside the
// network namespace of pid
func configureContainerSide(pid int, peer string, mac net.HardwareAddr, addr *net.IPNet, gw net.IP) error {
	ns, err := netns.GetFromPid(pid)
	if err != nil {
		return fmt.Errorf("network: netns of %d: %w", pid, err)
	}
	defer ns.Close()

	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return fmt.Errorf("network: netlink handle in %d: %w", pid, err)
	}
	defer h.Close()

	link, err := h.LinkByName(peer)
	if err != nil {
		return fmt.Errorf("network: lookup %s in container: %w", peer, err)
	}
	if err := h.LinkSetName(link, ContainerIfName); err != nil {
		return fmt.Errorf("network: rename %s: %w", peer, err)
	}
	if err := h.LinkSetHardwareAddr(link, mac); err != nil {
		return fmt.Errorf("network: set mac: %w", err)
	}
	if err := h.AddrAdd(link, &netlink.Addr{IPNet: addr}); err != nil {
		return fmt.Errorf("network: set address %s: %w", addr, err)
	}
	if err := h.LinkSetUp(link); err != nil {
		return fmt.Errorf("network: %s up: %w", ContainerIfName, err)
	}
	lo, err := h.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("network: lookup lo: %w", err)
	}
	if err := h.LinkSetUp(lo); err != nil {
		return fmt.Errorf("network: lo up: %w", err)
	}
	route := &netlink.Route{LinkIndex: link.Attrs().Index, Gw: gw}
	if err := h.RouteAdd(route); err != nil {
		return fmt.Errorf("network: default route via %s: %w", gw, err)
	}
	return nil
}

// SetupPortMapping forwards each "host:container" mapping to ip. Malformed
// or failing entries are skipped. It returns the mappings in effect.
func (m *Manager) SetupPortMapping(ip string, mappings []string) []string {
	if len(mappings) == 0 {
		return nil
	}
	fw, err := m.firewall()
	if err != nil {
		m.log.Warn("port mapping skipped", "err", err)
		return nil
	}
	var applied []string
	for _, s := range mappings {
		p, err := ParsePortMapping(s)
		if err != nil {
			m.log.Warn("invalid port mapping", "mapping", s, "err", err)
			continue
		}
		r := dnatRule(ip, p)
		if err := fw.AppendUnique(r.table, r.chain, r.spec...); err != nil {
			m.log.Warn("port mapping failed", "mapping", s, "err", err)
			continue
		}
		applied = append(applied, p.String())
	}
	return applied
}

// Disconnect removes what Connect set up for ep. Every step is attempted.
func (m *Manager) Disconnect(ep *Endpoint) error {
	if ep == nil {
		return nil
	}
	var errs []error
	if len(ep.PortMappings) > 0 {
		if fw, err := m.firewall(); err != nil {
			errs = append(errs, err)
		} else {
			var rules []rule
			for _, s := range ep.PortMappings {
				if p, err := ParsePortMapping(s); err == nil {
					rules = append(rules, dnatRule(ep.IP, p))
				}
			}
			if err := deleteRules(fw, rules); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if ep.HostVeth != "" {
		if err := deleteLink(ep.HostVeth); err != nil {
			errs = append(errs, err)
		}
	}
	if ep.IP != "" {
		if _, err := m.IPAM.Release(ep.Subnet, ep.IP); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("network: disconnect %s: %w", ep.ID, err)
	}
	m.log.Info("container disconnected", "id", ep.ID, "ip", ep.IP)
	return nil
}

// deleteLink deletes the named link if it still exists. Deleting either end
// of a veth pair removes both.
func deleteLink(name string) error {
	l, err := netlink.LinkByName(name)
	if isLinkNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("network: lookup %s: %w", name, err)
	}
	if err := netlink.LinkDel(l); err != nil {
		return fmt.Errorf("network: delete %s: %w", name, err)
	}
	return nil
}
