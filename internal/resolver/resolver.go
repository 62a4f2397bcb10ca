// Package resolver builds a *net.Resolver from the client.dnsServer
// config value, per the selection rules in spec.md §6: "system" uses
// the zero-value resolver; cloudflare/google/quad9 select a
// well-known public resolver; anything else is treated as a
// comma-separated list of resolver addresses that round-robin across
// requests.
//
// No ecosystem DNS-client library appears anywhere in the retrieved
// corpus — every repo that resolves hostnames uses net.Resolver or
// net.LookupHost directly (see wiktorbgu-awg-proxy's
// net.ResolveUDPAddr reconnect path). This package stays on stdlib
// net.Resolver, noted in DESIGN.md as a justified stdlib-only piece.
package resolver

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

var wellKnown = map[string]string{
	"cloudflare": "1.1.1.1:53",
	"google":     "8.8.8.8:53",
	"quad9":      "9.9.9.9:53",
}

// Resolver selects among one or more upstream DNS servers and resolves
// hostnames to IPv4 addresses.
type Resolver struct {
	system    bool
	addrs     []string
	nextIndex atomic.Uint64
}

// New builds a Resolver from the client.dnsServer config value.
func New(dnsServer string) *Resolver {
	v := strings.TrimSpace(dnsServer)
	if v == "" || v == "system" {
		return &Resolver{system: true}
	}
	if addr, ok := wellKnown[v]; ok {
		return &Resolver{addrs: []string{addr}}
	}

	var addrs []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(part); err != nil {
			part = net.JoinHostPort(part, "53")
		}
		addrs = append(addrs, part)
	}
	if len(addrs) == 0 {
		return &Resolver{system: true}
	}
	return &Resolver{addrs: addrs}
}

// netResolver returns the *net.Resolver to use for the next lookup,
// round-robining across configured addresses.
func (r *Resolver) netResolver() *net.Resolver {
	if r.system || len(r.addrs) == 0 {
		return net.DefaultResolver
	}
	addr := r.addrs[r.nextIndex.Add(1)%uint64(len(r.addrs))]
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			return d.DialContext(ctx, network, addr)
		},
	}
}

// LookupIPv4 resolves host to up to max IPv4 addresses.
func (r *Resolver) LookupIPv4(ctx context.Context, host string, max int) ([]string, error) {
	ips, err := r.netResolver().LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ip := range ips {
		if len(out) >= max {
			break
		}
		out = append(out, ip.String())
	}
	return out, nil
}
