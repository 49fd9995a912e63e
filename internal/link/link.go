// Package link reports whether the host's network link is usable.
package link

import (
	"net"
)

// Interfaces checks the host's network interfaces. The link is up when a
// matching interface is up, is not loopback and has a global unicast
// address. Association itself is left to the OS network manager.
type Interfaces struct {
	// Name restricts the check to one interface, e.g. "wlan0". Empty means any.
	Name string

	// list is replaced in tests.
	list func() ([]iface, error)
}

type iface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

// Up implements supervisor.Link.
func (l *Interfaces) Up() bool {
	list := l.list
	if list == nil {
		list = systemInterfaces
	}
	ifs, err := list()
	if err != nil {
		return false
	}
	for _, i := range ifs {
		if l.Name != "" && i.name != l.Name {
			continue
		}
		if i.flags&net.FlagUp == 0 || i.flags&net.FlagLoopback != 0 {
			continue
		}
		for _, a := range i.addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

// Connect implements supervisor.Link. Association is owned by the OS, so
// there is nothing to start here.
func (l *Interfaces) Connect() error { return nil }

func systemInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]iface, 0, len(ifs))
	for _, i := range ifs {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		out = append(out, iface{name: i.Name, flags: i.Flags, addrs: addrs})
	}
	return out, nil
}
