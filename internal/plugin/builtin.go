package plugin

import (
	"time"

	"github.com/tankrelay/tankrelay/internal/hooks"
)

func init() {
	Register(&uptimePlugin{})
}

// uptimePlugin is the one built-in compile-time plugin: an "uptime"
// command reporting how long it's been since the plugin loaded, and a
// one-shot log line on the first client-bound packet observed.
type uptimePlugin struct {
	loadedAt time.Time
	seen     bool
}

func (p *uptimePlugin) Name() string { return "uptime" }

func (p *uptimePlugin) Register(h *Host) {
	p.loadedAt = time.Now()

	h.RegisterCommand("uptime", func(args []string) {
		h.Log.Info("uptime: %s", time.Since(p.loadedAt))
	})

	h.On(hooks.ClientBound.EventName(), func(ctx *hooks.Context) {
		if p.seen {
			return
		}
		p.seen = true
		h.Log.Debug("uptime: first client-bound packet observed")
	})
}
