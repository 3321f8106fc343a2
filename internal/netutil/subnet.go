// Package netutil holds the address helpers behind the subnetcalc and localip
// commands.
package netutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrNotIPv4     = errors.New("netutil: only IPv4 is supported")
	ErrNoHostRange = errors.New("netutil: prefix leaves no host addresses")
)

// Subnet describes an IPv4 network and its usable host range.
type Subnet struct {
	Network   netip.Addr
	Broadcast netip.Addr
	FirstHost netip.Addr
	LastHost  netip.Addr
	Mask      netip.Addr
	Wildcard  netip.Addr
	Bits      int
	Hosts     uint32
}

// CalculateSubnet returns the subnet of ip with the given prefix length. The
// network and broadcast addresses are excluded from the host range, so
// prefixes longer than 30 are rejected.
func CalculateSubnet(ip string, bits int) (Subnet, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Subnet{}, fmt.Errorf("netutil: parse %q: %w", ip, err)
	}
	if !addr.Is4() {
		return Subnet{}, ErrNotIPv4
	}
	if bits < 0 || bits > 32 {
		return Subnet{}, fmt.Errorf("netutil: invalid prefix length %d", bits)
	}
	if bits > 30 {
		return Subnet{}, fmt.Errorf("%w: /%d", ErrNoHostRange, bits)
	}

	mask := ^uint32(0) << (32 - bits)
	network := toUint32(addr) & mask
	broadcast := network | ^mask
	return Subnet{
		Network:   fromUint32(network),
		Broadcast: fromUint32(broadcast),
		FirstHost: fromUint32(network + 1),
		LastHost:  fromUint32(broadcast - 1),
		Mask:      fromUint32(mask),
		Wildcard:  fromUint32(^mask),
		Bits:      bits,
		Hosts:     broadcast - network - 1,
	}, nil
}

// ParseCIDR accepts "a.b.c.d/n".
func ParseCIDR(s string) (Subnet, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return Subnet{}, fmt.Errorf("netutil: parse %q: %w", s, err)
	}
	return CalculateSubnet(prefix.Addr().String(), prefix.Bits())
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
