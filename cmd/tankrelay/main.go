// Command tankrelay runs the man-in-the-middle relay: it listens for
// the game client over UDP, intercepts the HTTPS bootstrap request
// that would otherwise point the client at the real server, and
// relays/decodes traffic between the client and the real upstream.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tankrelay/tankrelay/internal/bootstrap"
	"github.com/tankrelay/tankrelay/internal/command"
	"github.com/tankrelay/tankrelay/internal/config"
	"github.com/tankrelay/tankrelay/internal/hooks"
	"github.com/tankrelay/tankrelay/internal/metrics"
	"github.com/tankrelay/tankrelay/internal/plugin"
	"github.com/tankrelay/tankrelay/internal/ratelimit"
	"github.com/tankrelay/tankrelay/internal/relay"
	"github.com/tankrelay/tankrelay/internal/resolver"
	"github.com/tankrelay/tankrelay/internal/scheduler"
	"github.com/tankrelay/tankrelay/internal/socksdialer"
	"github.com/tankrelay/tankrelay/internal/tlscert"
	"github.com/tankrelay/tankrelay/internal/transport"
	"github.com/tankrelay/tankrelay/pkg/logger"
	pkgmetrics "github.com/tankrelay/tankrelay/pkg/metrics"
)

// fallbackDomains are the four fixed intercept domains: the TLS
// certificate covers them, and they pad the bootstrap candidate-host
// list alongside the request's Host header and the configured primary
// host.
var fallbackDomains = []string{"www.growtopia1.com", "www.growtopia2.com", "growtopia1.com", "growtopia2.com"}

func main() {
	cfgFile := flag.String("config", "config.json", "Path to configuration file")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Println("tankrelay v0.1.0")
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Default.Reconfigure(logger.ParseLevel(cfg.Log.Level), logger.Categories{
		PrintMessage:          cfg.Log.PrintMessage,
		PrintGameUpdatePacket: cfg.Log.PrintGameUpdatePacket,
		PrintVariant:          cfg.Log.PrintVariant,
		PrintExtra:            cfg.Log.PrintExtra,
	})

	coll := metrics.NewCollector()
	metrics.InitPrometheus("tankrelay", coll)

	inbound, fellBack, err := transport.ListenInboundAuto(fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		logger.Error("failed to open inbound listener: %v", err)
		os.Exit(1)
	}
	defer inbound.Close()
	listenPort := inbound.Port()
	if fellBack {
		logger.Default.Warn("udp port %d already in use, falling back to %d", cfg.Server.Port, listenPort)
	}

	commands := command.New(cfg.Command.Prefix[0])
	registerDefaultCommands(commands, coll)

	bus := hooks.New()
	sched := scheduler.New()

	dialer := func(host string, port int) (relay.OutboundPeer, error) {
		if cfg.Client.LocalPort != 0 {
			out, err := transport.DialOutboundLocal(host, port, cfg.Client.LocalPort)
			if err == nil {
				return out, nil
			}
			logger.Default.Warn("local port %d unavailable for outbound dial (%v), falling back to ephemeral", cfg.Client.LocalPort, err)
		}
		return transport.DialOutbound(host, port)
	}

	rel := relay.New(relay.Config{ListenPort: listenPort}, inbound, dialer, commands, bus, sched, coll)

	if cfg.Scripts.Enabled {
		host := &plugin.Host{
			Commands: commands,
			Hooks:    bus,
			Log:      logger.Default,
			Config: plugin.Snapshot{
				GameVersion: cfg.Client.GameVersion,
				Protocol:    cfg.Client.Protocol,
				Prefix:      cfg.Command.Prefix,
			},
		}
		plugin.LoadAll(host)
		if cfg.Scripts.Path != "" {
			logger.Default.Info("scripts.path %q ignored: plugins are linked in at compile time, not loaded from disk", cfg.Scripts.Path)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fatalCh := make(chan error, 1)

	go rel.Run(ctx)

	if cfg.Web.Port > 0 {
		bootstrapSrv, err := newBootstrapServer(cfg, rel, listenPort)
		if err != nil {
			logger.Error("failed to initialize bootstrap listener: %v", err)
			os.Exit(1)
		}
		go func() {
			if err := bootstrapSrv.Serve(ctx); err != nil {
				select {
				case fatalCh <- err:
				default:
				}
			}
		}()
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	logger.Default.Info("tankrelay: listening on udp :%d, bootstrap port %d", listenPort, cfg.Web.Port)

	select {
	case <-sigCh:
		logger.Default.Info("shutting down...")
		cancel()
		time.Sleep(2 * time.Second)
		logger.Default.Info("shutdown complete")
	case err := <-fatalCh:
		logger.Error("bootstrap listener error: %v", err)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}

// newBootstrapServer wires a bootstrap.Server from the loaded config:
// resolver, SOCKS dialer, self-signed cert covering the primary host
// plus the fixed fallback domains, and the relay as EndpointSetter.
func newBootstrapServer(cfg *config.Config, rel *relay.Relay, listenPort int) (*bootstrap.Server, error) {
	domains := dedupDomains(cfg.Server.Address, fallbackDomains)

	cert, err := tlscert.Load(cfg.Web.CertPath, cfg.Web.KeyPath, domains)
	if err != nil {
		return nil, fmt.Errorf("loading tls certificate: %w", err)
	}

	socks, err := socksdialer.New(cfg.Web.SocksProxy)
	if err != nil {
		return nil, fmt.Errorf("configuring socks dialer: %w", err)
	}

	bcfg := bootstrap.Config{
		ListenAddr:        fmt.Sprintf(":%d", cfg.Web.Port),
		PrimaryHost:       cfg.Server.Address,
		InterceptDomains:  domains,
		ListenPort:        listenPort,
		IgnoreMaintenance: cfg.Web.IgnoreMaintenance,
		Resolver:          resolver.New(cfg.Client.DNSServer),
		SocksDialer:       socks,
		Metrics:           pkgmetrics.Default,
		RateLimit:         ratelimit.New(cfg.Web.RateLimit),
	}
	return bootstrap.New(bcfg, rel, cert), nil
}

func dedupDomains(primary string, fallbacks []string) []string {
	seen := make(map[string]bool, len(fallbacks)+1)
	var out []string
	add := func(d string) {
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	add(primary)
	for _, d := range fallbacks {
		add(d)
	}
	return out
}

// registerDefaultCommands wires the in-chat commands the relay always
// supports, beyond whatever the script/hook layer adds at runtime.
func registerDefaultCommands(commands *command.Registry, coll *metrics.Collector) {
	commands.Register("metrics", func(args []string) {
		snap := coll.Snapshot()
		logger.Default.Info("metrics: upstream=%v client=%v toClient=%d toServer=%d dropped=%d malformed=%d",
			snap.UpstreamConnected, snap.ClientAttached, snap.PacketsToClient, snap.PacketsToServer,
			snap.PacketsDropped, snap.MalformedFrames)
	})
}

// serveMetrics runs the Prometheus/health HTTP endpoint, grounded on
// internal/proxy.HttpServe's http.Server+graceful-Shutdown shape.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Default.Info("metrics: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Default.Error("metrics listener error: %v", err)
	}
}
