package engine

import (
	"net/netip"
	"testing"

	"nft-acceptance-tester/internal/model"
)

func mustAddrs(t *testing.T, values ...string) []netip.Addr {
	t.Helper()
	addrs := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		addr, err := netip.ParseAddr(v)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", v, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs
}

func testTopology(t *testing.T) *model.NetworkConfiguration {
	t.Helper()
	cfg := model.NewNetworkConfiguration()
	cfg.Networks["lan"] = model.Network{Name: "lan", Prefix: netip.MustParsePrefix("192.168.0.0/24")}
	cfg.Networks["dmz"] = model.Network{Name: "dmz", Prefix: netip.MustParsePrefix("172.16.0.0/24")}
	cfg.Networks["empty"] = model.Network{Name: "empty", Prefix: netip.MustParsePrefix("10.99.0.0/16")}
	cfg.Networks["v6"] = model.Network{Name: "v6", Prefix: netip.MustParsePrefix("2001:db8::/64")}

	cfg.Machines["fw"] = model.Machine{
		Name:       "fw",
		IPs:        mustAddrs(t, "192.168.0.10", "172.16.0.1"),
		Management: netip.MustParseAddr("10.0.0.1"),
		User:       "root",
		Password:   "secret",
		Script:     "rules/fw.nft",
	}
	cfg.Machines["client"] = model.Machine{
		Name:       "client",
		IPs:        mustAddrs(t, "192.168.0.20"),
		Management: netip.MustParseAddr("10.0.0.2"),
		User:       "user",
		Password:   "pw",
	}
	cfg.Machines["web"] = model.Machine{
		Name:       "web",
		IPs:        mustAddrs(t, "2001:db8::80"),
		Management: netip.MustParseAddr("10.0.0.3"),
		User:       "admin",
		Password:   "pw",
	}
	return cfg
}
