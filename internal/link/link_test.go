package link

import (
	"errors"
	"net"
	"testing"
)

func ipnet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestInterfacesUp(t *testing.T) {
	ifs := []iface{
		{name: "lo", flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{ipnet("127.0.0.1/8")}},
		{name: "eth0", flags: 0, addrs: []net.Addr{ipnet("192.168.1.20/24")}},
		{name: "wlan0", flags: net.FlagUp, addrs: []net.Addr{ipnet("fe80::1/64"), ipnet("10.0.0.7/24")}},
	}
	cases := []struct {
		name string
		want bool
	}{
		{"", true},
		{"wlan0", true},
		{"eth0", false},
		{"lo", false},
		{"usb0", false},
	}
	for _, tc := range cases {
		l := &Interfaces{Name: tc.name, list: func() ([]iface, error) { return ifs, nil }}
		if got := l.Up(); got != tc.want {
			t.Errorf("Up(%q)=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestInterfacesListError(t *testing.T) {
	l := &Interfaces{list: func() ([]iface, error) { return nil, errors.New("netlink") }}
	if l.Up() {
		t.Fatal("Up() = true on listing error")
	}
}
