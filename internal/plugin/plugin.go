// Package plugin is the compile-time plugin registry spec.md §9 calls
// for in place of a dynamic from-disk script loader: plugins are
// ordinary Go values, registered via Register (typically from an
// init() in the file defining them) and linked directly into the
// binary, rather than loaded from scripts.path at runtime. Each
// plugin sees exactly the surface spec.md names for a loaded script:
// registerCommand, on(eventName, handler), a logger, and a read-only
// config snapshot.
package plugin

import (
	"github.com/tankrelay/tankrelay/internal/command"
	"github.com/tankrelay/tankrelay/internal/hooks"
	"github.com/tankrelay/tankrelay/pkg/logger"
)

// Snapshot is the read-only config view handed to plugins, matching
// spec.md §9's "config snapshot" requirement without exposing the
// full internal/config.Config (plugins never see e.g. TLS paths).
type Snapshot struct {
	GameVersion string
	Protocol    int
	Prefix      string
}

// Host is the surface a Plugin registers itself against.
type Host struct {
	Commands *command.Registry
	Hooks    *hooks.Bus
	Log      *logger.Logger
	Config   Snapshot
}

// RegisterCommand aliases Host.Commands.Register, named to match
// spec.md's registerCommand verbatim.
func (h *Host) RegisterCommand(name string, fn command.Handler) {
	h.Commands.Register(name, fn)
}

// On aliases Host.Hooks.On, named to match spec.md's
// on(eventName, handler) verbatim.
func (h *Host) On(eventName string, fn hooks.Subscriber) {
	h.Hooks.On(eventName, fn)
}

// Plugin is a compile-time-linked script. Register is called once, at
// startup, with the Host it should wire itself against.
type Plugin interface {
	Name() string
	Register(h *Host)
}

var registry []Plugin

// Register adds p to the set loaded by LoadAll. Safe to call from
// package-level init() functions, the conventional place to populate
// a compile-time plugin registry in Go.
func Register(p Plugin) {
	registry = append(registry, p)
}

// LoadAll registers every compiled-in plugin against h, in
// registration order, logging each by name as it loads.
func LoadAll(h *Host) {
	for _, p := range registry {
		h.Log.Info("plugin: loading %s", p.Name())
		p.Register(h)
	}
}
