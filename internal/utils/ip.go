package utils

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Exploded returns the canonical long form of an address: dotted quad for
// IPv4, eight zero-padded hextets for IPv6.
func Exploded(addr netip.Addr) string {
	if addr.Is4() {
		return addr.String()
	}
	b := addr.As16()
	groups := make([]string, 8)
	for i := range groups {
		groups[i] = fmt.Sprintf("%02x%02x", b[2*i], b[2*i+1])
	}
	return strings.Join(groups, ":")
}

// ParsePrefix builds a prefix from a network address and a netmask given
// either as a prefix length ("24") or in dotted form ("255.255.255.0").
// Host bits set in the address are rejected.
func ParsePrefix(address, mask string) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return netip.Prefix{}, err
	}

	bits, err := maskBits(addr, strings.TrimSpace(mask))
	if err != nil {
		return netip.Prefix{}, err
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, err
	}
	if prefix.Addr() != addr {
		return netip.Prefix{}, fmt.Errorf("%s/%d has host bits set", addr, bits)
	}
	return prefix, nil
}

func maskBits(addr netip.Addr, mask string) (int, error) {
	if !strings.Contains(mask, ".") {
		bits, err := strconv.Atoi(mask)
		if err != nil {
			return 0, fmt.Errorf("invalid netmask %q", mask)
		}
		if bits < 0 || bits > addr.BitLen() {
			return 0, fmt.Errorf("netmask /%d out of range", bits)
		}
		return bits, nil
	}

	m, err := netip.ParseAddr(mask)
	if err != nil || !m.Is4() || !addr.Is4() {
		return 0, fmt.Errorf("invalid netmask %q", mask)
	}
	b := m.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ones := 0
	for v&0x80000000 != 0 {
		ones++
		v <<= 1
	}
	if v != 0 {
		return 0, fmt.Errorf("non-contiguous netmask %q", mask)
	}
	return ones, nil
}

// CIDRSize returns the number of addresses in a prefix, saturating at 2^63.
func CIDRSize(p netip.Prefix) uint64 {
	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits >= 64 {
		return 1 << 63
	}
	return 1 << hostBits
}
