package engine

import (
	"net/netip"
	"strings"

	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/utils"
)

// Resolve expands a testcase destination into the exploded addresses it
// refers to. A destination may be an address, a network in CIDR notation,
// a machine name or a network name.
func Resolve(destination string, cfg *model.NetworkConfiguration) ([]string, error) {
	if addr, err := netip.ParseAddr(destination); err == nil {
		return []string{utils.Exploded(addr)}, nil
	}

	var hosts []string

	if prefix, ok := parseNetwork(destination); ok {
		hosts = appendContained(hosts, cfg, prefix)
		if len(hosts) == 0 {
			return nil, model.Errorf(model.ErrEmptyNetworkMatch, "No Machines in Network %s", destination)
		}
	}

	if machine, ok := cfg.Machines[destination]; ok {
		for _, ip := range machine.IPs {
			hosts = append(hosts, utils.Exploded(ip))
		}
	}

	if network, ok := cfg.Networks[destination]; ok {
		hosts = appendContained(hosts, cfg, network.Prefix)
	}

	if len(hosts) == 0 {
		return nil, model.Errorf(model.ErrInvalidDestination, "%s is not a Valid Destination", destination)
	}
	return hosts, nil
}

// parseNetwork accepts address/length and address/dotted-mask notation.
// Networks with host bits set are not networks.
func parseNetwork(s string) (netip.Prefix, bool) {
	address, mask, found := strings.Cut(s, "/")
	if !found {
		return netip.Prefix{}, false
	}
	prefix, err := utils.ParsePrefix(address, mask)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix, true
}

// appendContained appends every machine address inside prefix, scanning
// machines in name order.
func appendContained(hosts []string, cfg *model.NetworkConfiguration, prefix netip.Prefix) []string {
	for _, name := range cfg.MachineNames() {
		for _, ip := range cfg.Machines[name].IPs {
			if prefix.Contains(ip) {
				hosts = append(hosts, utils.Exploded(ip))
			}
		}
	}
	return hosts
}
