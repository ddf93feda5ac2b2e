package transport

import (
	"context"
	"net"
	"net/netip"

	"github.com/brickingsoft/errors"
	"golang.org/x/net/idna"
)

// IPFamily tags an IPAddress as v4 or v6. There is no unset family; an
// IPAddress always carries exactly one.
type IPFamily uint8

const (
	IPv4 IPFamily = iota + 1
	IPv6
)

func (f IPFamily) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "ip?"
	}
}

// IPAddress is a resolved endpoint address. The family discriminates the
// representation; v4 addresses are never stored in mapped v6 form.
type IPAddress struct {
	Family IPFamily
	Addr   netip.Addr
}

func (a IPAddress) String() string {
	return a.Addr.String()
}

func (a IPAddress) IsValid() bool {
	return a.Family == IPv4 || a.Family == IPv6
}

func ipAddressOf(addr netip.Addr) IPAddress {
	if addr.Is4() || addr.Is4In6() {
		return IPAddress{Family: IPv4, Addr: addr.Unmap()}
	}
	return IPAddress{Family: IPv6, Addr: addr}
}

// NormalizeHost converts host to its ASCII (punycode) form for DNS lookup
// and SNI. Literal IP addresses pass through unchanged.
func NormalizeHost(host string) (string, error) {
	if _, err := netip.ParseAddr(host); err == nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", errors.New("transport: invalid host name", errors.WithWrap(err))
	}
	return ascii, nil
}

// Resolve looks host up and returns its addresses, v4 first. host may be a
// literal address, which resolves to itself.
func Resolve(ctx context.Context, host string) ([]IPAddress, error) {
	normalized, err := NormalizeHost(host)
	if err != nil {
		return nil, err
	}
	if addr, parseErr := netip.ParseAddr(normalized); parseErr == nil {
		return []IPAddress{ipAddressOf(addr)}, nil
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", normalized)
	if err != nil {
		return nil, errors.New("transport: resolve failed", errors.WithMeta("host", host), errors.WithWrap(err))
	}
	addresses := make([]IPAddress, 0, len(ips))
	for _, ip := range ips {
		if ip.Is4() || ip.Is4In6() {
			addresses = append(addresses, ipAddressOf(ip))
		}
	}
	for _, ip := range ips {
		if !ip.Is4() && !ip.Is4In6() {
			addresses = append(addresses, ipAddressOf(ip))
		}
	}
	if len(addresses) == 0 {
		return nil, errors.New("transport: host has no addresses", errors.WithMeta("host", host))
	}
	return addresses, nil
}
