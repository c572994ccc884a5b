package network

import "strconv"

// firewall is the subset of iptables used here
type firewall interface {
	AppendUnique(table, chain string, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
}

type rule struct {
	table, chain string
	spec         []string
}

// bridgeRules masquerades traffic leaving the subnet through another device
// and accepts forwarding in and out of the bridge
func bridgeRules(bridge, subnet string) []rule {
	return []rule{
		{"nat", "POSTROUTING", []string{"-s", subnet, "!", "-o", bridge, "-j", "MASQUERADE"}},
		{"filter", "FORWARD", []string{"-i", bridge, "-j", "ACCEPT"}},
		{"filter", "FORWARD", []string{"-o", bridge, "-j", "ACCEPT"}},
	}
}

func dnatRule(ip string, p PortMapping) rule {
	return rule{"nat", "PREROUTING", []string{
		"-p", "tcp", "--dport", strconv.Itoa(p.Host),
		"-j", "DNAT", "--to-destination", ip + ":" + strconv.Itoa(p.Container),
	}}
}

func appendRules(fw firewall, rules []rule) error {
	for _, r := range rules {
		if err := fw.AppendUnique(r.table, r.chain, r.spec...); err != nil {
			return err
		}
	}
	return nil
}

func deleteRules(fw firewall, rules []rule) error {
	var first error
	for _, r := range rules {
		if err := fw.DeleteIfExists(r.table, r.chain, r.spec...); err != nil && first == nil {
			first = err
		}
	}
	return first
}
