package network

import (
	"fmt"
	"net"

	"github.com/jsimonetti/rtnetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// AddrConfigurator assigns the static address of the hosted access
// point's wireless interface (spec.md §4.G: bring the interface up
// with a fixed IPv4 address before hostapd/dnsmasq start). Two
// implementations exist: one that shells out to `ip addr`/`ip link`
// through the same CommandBuilder abstraction the rest of this
// package uses, and one that talks directly to the kernel over an
// AF_NETLINK socket via rtnetlink — promoted here from a teacher
// indirect dependency to a direct one, per DESIGN.md.
type AddrConfigurator interface {
	SetAddress(iface, cidr string) error
	LinkUp(iface string) error
	LinkDown(iface string) error
}

// cidrFor combines an IPv4 address and dotted-quad netmask into CIDR
// notation (e.g. "192.168.50.1/24") for AddrConfigurator.SetAddress.
func cidrFor(ip, netmask string) (string, error) {
	maskBytes, err := parseIPv4(netmask)
	if err != nil {
		return "", err
	}
	mask := net.IPv4Mask(maskBytes[0], maskBytes[1], maskBytes[2], maskBytes[3])
	prefixLen, bits := mask.Size()
	if bits == 0 {
		return "", fmt.Errorf("%w: invalid netmask %q", ErrInvalidParameter, netmask)
	}
	return fmt.Sprintf("%s/%d", ip, prefixLen), nil
}

// shellAddrConfigurator implements AddrConfigurator with `ip` shell-outs.
type shellAddrConfigurator struct {
	builder CommandBuilder
}

// NewShellAddrConfigurator returns the CommandBuilder-backed implementation.
func NewShellAddrConfigurator(builder CommandBuilder) AddrConfigurator {
	return &shellAddrConfigurator{builder: builder}
}

func (s *shellAddrConfigurator) SetAddress(iface, cidr string) error {
	_, err := s.builder.BuildCommand("ip", "addr", "add", cidr, "dev", iface).Run()
	if err != nil {
		return fmt.Errorf("%w: set address %s on %s: %v", ErrApManagerFailed, cidr, iface, err)
	}
	return nil
}

func (s *shellAddrConfigurator) LinkUp(iface string) error {
	_, err := s.builder.BuildCommand("ip", "link", "set", iface, "up").Run()
	if err != nil {
		return fmt.Errorf("%w: link up %s: %v", ErrApManagerFailed, iface, err)
	}
	return nil
}

func (s *shellAddrConfigurator) LinkDown(iface string) error {
	_, err := s.builder.BuildCommand("ip", "link", "set", iface, "down").Run()
	if err != nil {
		return fmt.Errorf("%w: link down %s: %v", ErrApManagerFailed, iface, err)
	}
	return nil
}

// netlinkAddrConfigurator implements AddrConfigurator by talking
// directly to the kernel's rtnetlink interface, avoiding a fork/exec
// per call on a device where startup latency matters.
type netlinkAddrConfigurator struct {
	dial func(*netlink.Config) (*rtnetlink.Conn, error)
}

// NewNetlinkAddrConfigurator returns the rtnetlink-backed implementation.
func NewNetlinkAddrConfigurator() AddrConfigurator {
	return &netlinkAddrConfigurator{dial: rtnetlink.Dial}
}

func (n *netlinkAddrConfigurator) withConn(fn func(*rtnetlink.Conn) error) error {
	conn, err := n.dial(nil)
	if err != nil {
		return fmt.Errorf("%w: dial rtnetlink: %v", ErrApManagerFailed, err)
	}
	defer conn.Close()
	return fn(conn)
}

func (n *netlinkAddrConfigurator) SetAddress(iface, cidr string) error {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("%w: invalid CIDR %q: %v", ErrInvalidParameter, cidr, err)
	}
	prefixLen, _ := ipNet.Mask.Size()

	return n.withConn(func(conn *rtnetlink.Conn) error {
		nif, err := net.InterfaceByName(iface)
		if err != nil {
			return fmt.Errorf("%w: resolve interface %s: %v", ErrApManagerFailed, iface, err)
		}

		return conn.Address.New(&rtnetlink.AddressMessage{
			Family:       uint8(unix.AF_INET),
			PrefixLength: uint8(prefixLen),
			Scope:        unix.RT_SCOPE_UNIVERSE,
			Index:        uint32(nif.Index),
			Attributes: &rtnetlink.AddressAttributes{
				Address: ip,
				Local:   ip,
			},
		})
	})
}

func (n *netlinkAddrConfigurator) LinkUp(iface string) error {
	return n.withConn(func(conn *rtnetlink.Conn) error {
		link, err := net.InterfaceByName(iface)
		if err != nil {
			return fmt.Errorf("%w: resolve interface: %v", ErrApManagerFailed, err)
		}

		return conn.Link.Set(&rtnetlink.LinkMessage{
			Family: uint16(unix.AF_UNSPEC),
			Index:  uint32(link.Index),
			Flags:  uint32(unix.IFF_UP),
			Change: uint32(unix.IFF_UP),
		})
	})
}

func (n *netlinkAddrConfigurator) LinkDown(iface string) error {
	return n.withConn(func(conn *rtnetlink.Conn) error {
		link, err := net.InterfaceByName(iface)
		if err != nil {
			return fmt.Errorf("%w: resolve interface: %v", ErrApManagerFailed, err)
		}

		return conn.Link.Set(&rtnetlink.LinkMessage{
			Family: uint16(unix.AF_UNSPEC),
			Index:  uint32(link.Index),
			Flags:  0,
			Change: uint32(unix.IFF_UP),
		})
	})
}
