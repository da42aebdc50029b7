package templates

import (
	"fmt"
	"net"
	"net/netip"
	"text/template"
)

// =============================================================================
// Networking Template Functions
// =============================================================================

// netFuncs returns the networking helpers available inside templates.
// Each helper degrades to a usable fallback on bad input so a template
// probe fails on its own problems, not on placeholder data.
func netFuncs() template.FuncMap {
	return template.FuncMap{
		"ipv4Network":  ipv4Network,
		"subnetMask":   subnetMask,
		"wildcardMask": wildcardMask,
	}
}

// ipv4Network returns the network address for an IP and prefix length,
// e.g. ipv4Network "192.168.10.37" 24 -> "192.168.10.0".
func ipv4Network(addr string, prefixLen int) string {
	p, err := netip.ParsePrefix(fmt.Sprintf("%s/%d", addr, prefixLen))
	if err != nil {
		return addr
	}
	return p.Masked().Addr().String()
}

// subnetMask converts a prefix length to a dotted subnet mask,
// e.g. subnetMask 24 -> "255.255.255.0".
func subnetMask(prefixLen int) string {
	if prefixLen < 0 || prefixLen > 32 {
		return "255.255.255.0"
	}
	return net.IP(net.CIDRMask(prefixLen, 32)).String()
}

// wildcardMask converts a prefix length to an inverse (wildcard) mask,
// e.g. wildcardMask 24 -> "0.0.0.255".
func wildcardMask(prefixLen int) string {
	if prefixLen < 0 || prefixLen > 32 {
		return "0.0.0.255"
	}
	mask := net.CIDRMask(prefixLen, 32)
	inv := make(net.IP, len(mask))
	for i, b := range mask {
		inv[i] = ^b
	}
	return inv.String()
}
