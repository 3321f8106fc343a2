package netutil

import (
	"fmt"
	"net"
)

// InterfaceAddr is one address assigned to a local interface.
type InterfaceAddr struct {
	Name string
	IP   net.IP
}

func (a InterfaceAddr) String() string {
	return fmt.Sprintf("%s: %s", a.Name, a.IP)
}

// LocalAddrs lists the addresses of every local interface, loopback included.
func LocalAddrs() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netutil: list interfaces: %w", err)
	}
	var out []InterfaceAddr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("netutil: addresses of %s: %w", iface.Name, err)
		}
		for _, addr := range addrs {
			if ip := addrIP(addr); ip != nil {
				out = append(out, InterfaceAddr{Name: iface.Name, IP: ip})
			}
		}
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}
