// Package config loads the proxy's JSON configuration file and fills
// in defaults for anything left zero, the same way
// cmd/karoo/main.go:loadConfig did for the stratum proxy this repo is
// descended from: read the file, json.Unmarshal into a struct, then a
// sequence of "if cfg.X == zero { cfg.X = default }" statements. No
// merge library.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tankrelay/tankrelay/internal/ratelimit"
)

// ServerConfig describes the inbound datagram listener and the
// upstream host the bootstrap response is built around.
type ServerConfig struct {
	Port    int    `json:"port"`
	Address string `json:"address"`
}

// ClientConfig carries advisory client identity fields plus the DNS
// resolver selection and local outbound port.
type ClientConfig struct {
	GameVersion string `json:"gameVersion"`
	Protocol    int    `json:"protocol"`
	DNSServer   string `json:"dnsServer"`
	LocalPort   int    `json:"localPort"`
}

// LogConfig selects verbosity and traffic-logging categories.
type LogConfig struct {
	Level                 string `json:"level"`
	PrintMessage          bool   `json:"printMessage"`
	PrintGameUpdatePacket bool   `json:"printGameUpdatePacket"`
	PrintVariant          bool   `json:"printVariant"`
	PrintExtra            bool   `json:"printExtra"`
}

// CommandConfig configures the in-chat command dispatcher.
type CommandConfig struct {
	Prefix string `json:"prefix"`
}

// SocksProxyConfig mirrors internal/proxysocks.Config: when Enabled,
// outbound HTTPS dials from internal/bootstrap go through this SOCKS5
// proxy instead of a direct net.Dialer.
type SocksProxyConfig struct {
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// WebConfig configures the HTTPS bootstrap/reverse-proxy interceptor.
type WebConfig struct {
	Port              int              `json:"port"`
	CertPath          string           `json:"certPath"`
	KeyPath           string           `json:"keyPath"`
	IgnoreMaintenance bool             `json:"ignoreMaintenance"`
	SocksProxy        SocksProxyConfig `json:"socksProxy"`
	RateLimit         ratelimit.Config `json:"rateLimit"`
}

// ScriptsConfig toggles loading of the compiled-in plugins
// (internal/plugin). Path is not read from: nothing is loaded from disk.
type ScriptsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig configures the optional Prometheus/health endpoint.
type MetricsConfig struct {
	Listen string `json:"listen"`
}

// Config is the top-level configuration document.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Client  ClientConfig  `json:"client"`
	Log     LogConfig     `json:"log"`
	Command CommandConfig `json:"command"`
	Web     WebConfig     `json:"web"`
	Scripts ScriptsConfig `json:"scripts"`
	Metrics MetricsConfig `json:"metrics"`
}

const (
	defaultServerPort    = 16999
	defaultServerAddress = "www.growtopia1.com"
	defaultWebPort       = 443
	defaultCommandPrefix = "/"
	defaultLogLevel      = "info"
	defaultDNSServer     = "system"
)

var validLogLevels = map[string]bool{
	"error": true, "warn": true, "info": true, "debug": true, "trace": true,
}

// Load reads path, unmarshals it into a Config, and fills in defaults
// for any zero-valued field that has one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in zero-valued fields and normalizes invalid
// ones (e.g. a malformed command.prefix reverts to "/").
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Client.DNSServer == "" {
		cfg.Client.DNSServer = defaultDNSServer
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if !validLogLevels[cfg.Log.Level] {
		cfg.Log.Level = defaultLogLevel
	}
	if len(cfg.Command.Prefix) != 1 {
		cfg.Command.Prefix = defaultCommandPrefix
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = defaultWebPort
	}
	if cfg.Web.SocksProxy.Type == "" {
		cfg.Web.SocksProxy.Type = "socks5"
	}
	if cfg.Web.RateLimit.Enabled {
		if cfg.Web.RateLimit.MaxRequestsPerMinute == 0 {
			cfg.Web.RateLimit.MaxRequestsPerMinute = 60
		}
		if cfg.Web.RateLimit.BanDurationSeconds == 0 {
			cfg.Web.RateLimit.BanDurationSeconds = 300
		}
		if cfg.Web.RateLimit.CleanupIntervalSeconds == 0 {
			cfg.Web.RateLimit.CleanupIntervalSeconds = 60
		}
	}
}
