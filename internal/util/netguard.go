package util

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
)

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// IsPublicAddr reports whether addr is routable on the public internet.
// Loopback, private, link-local, CGNAT and unspecified addresses are not.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() {
		return false
	}
	return !cgnat.Contains(addr)
}

// IsBlockedHost reports whether a URL host names a local target by itself,
// before any DNS lookup: localhost names and literal non-public IPs.
func IsBlockedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return !IsPublicAddr(addr)
	}
	return false
}

// PublicOnlyControl is a net.Dialer Control hook that refuses connections to
// non-public addresses. It sees the resolved IP, so it also covers redirects
// and hostnames that resolve to internal ranges.
func PublicOnlyControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	if !IsPublicAddr(addr) {
		return fmt.Errorf("refusing to dial non-public address %s over %s", addr, network)
	}
	return nil
}
