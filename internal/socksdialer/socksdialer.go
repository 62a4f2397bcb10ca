// Package socksdialer wraps golang.org/x/net/proxy so the HTTPS
// bootstrap interceptor can dial its upstream reverse-proxy
// connections through an optional SOCKS5 proxy, exactly the way
// internal/proxysocks wrapped it for the stratum upstream dialer.
package socksdialer

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/tankrelay/tankrelay/internal/config"
)

// Dialer dials either directly or through a configured SOCKS5 proxy.
type Dialer struct {
	cfg    config.SocksProxyConfig
	dialer proxy.Dialer
}

// New builds a Dialer from cfg. When cfg.Enabled is false it falls
// back to a plain net.Dialer.
func New(cfg config.SocksProxyConfig) (*Dialer, error) {
	if !cfg.Enabled {
		return &Dialer{cfg: cfg, dialer: &net.Dialer{Timeout: 10 * time.Second}}, nil
	}

	if cfg.Type != "socks5" {
		return nil, fmt.Errorf("unsupported proxy type: %s (must be 'socks5')", cfg.Type)
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("proxy host and port are required when socksProxy is enabled")
	}

	proxyAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	authURL := &url.URL{Scheme: "socks5", Host: proxyAddr}
	if cfg.Username != "" {
		authURL.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	d, err := proxy.FromURL(authURL, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}
	return &Dialer{cfg: cfg, dialer: d}, nil
}

// Dial opens network/address, through the proxy if enabled.
func (d *Dialer) Dial(network, address string) (net.Conn, error) {
	return d.dialer.Dial(network, address)
}

// DialContext opens network/address honoring ctx, falling back to a
// goroutine-based cancellation if the underlying dialer has no native
// context support (the x/net/proxy SOCKS5 dialer does not).
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if dctx, ok := d.dialer.(interface {
		DialContext(context.Context, string, string) (net.Conn, error)
	}); ok {
		return dctx.DialContext(ctx, network, address)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := d.dialer.Dial(network, address)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enabled reports whether a SOCKS5 proxy is in use.
func (d *Dialer) Enabled() bool {
	return d.cfg.Enabled
}

// Address returns the proxy address, or "" if disabled.
func (d *Dialer) Address() string {
	if !d.cfg.Enabled {
		return ""
	}
	return fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
}
