package metrics

import (
	"testing"
	"time"
)

func TestCollectorInitialState(t *testing.T) {
	c := NewCollector()
	if c.IsUpstreamConnected() {
		t.Error("initial upstream state should be false")
	}
	if c.IsClientAttached() {
		t.Error("initial client-attached state should be false")
	}
	if c.PacketsToClient.Load() != 0 || c.PacketsToServer.Load() != 0 {
		t.Error("initial packet counters should be 0")
	}
}

func TestCollectorUpstreamAndClient(t *testing.T) {
	c := NewCollector()
	c.SetUpstreamConnected(true)
	if !c.IsUpstreamConnected() {
		t.Error("expected upstream connected")
	}
	c.SetUpstreamConnected(false)
	if c.IsUpstreamConnected() {
		t.Error("expected upstream disconnected")
	}

	c.SetClientAttached(true)
	if !c.IsClientAttached() {
		t.Error("expected client attached")
	}
}

func TestCollectorPacketCounters(t *testing.T) {
	c := NewCollector()
	c.IncrementPacketsToClient()
	c.IncrementPacketsToClient()
	c.IncrementPacketsToServer()
	c.IncrementPacketsDropped()
	c.IncrementMalformedFrames()
	c.IncrementUpstreamRetries()
	c.IncrementBootstrapRequests()
	c.IncrementBootstrapErrors()

	if c.PacketsToClient.Load() != 2 {
		t.Errorf("expected 2 packets to client, got %d", c.PacketsToClient.Load())
	}
	if c.PacketsToServer.Load() != 1 {
		t.Errorf("expected 1 packet to server, got %d", c.PacketsToServer.Load())
	}
	if c.PacketsDropped.Load() != 1 || c.MalformedFrames.Load() != 1 {
		t.Error("expected dropped/malformed counters at 1")
	}
	if c.UpstreamRetries.Load() != 1 {
		t.Error("expected 1 upstream retry")
	}
	if c.BootstrapRequests.Load() != 1 || c.BootstrapErrors.Load() != 1 {
		t.Error("expected bootstrap counters at 1")
	}
}

func TestCollectorTouchUpdatesLastActivity(t *testing.T) {
	c := NewCollector()
	before := c.LastActivity()
	c.IncrementPacketsToClient()
	after := c.LastActivity()
	if !after.After(before) && after != before {
		t.Fatalf("expected last activity to advance, before=%v after=%v", before, after)
	}
	if time.Since(after) > time.Minute {
		t.Fatalf("expected last activity to be recent, got %v", after)
	}
}

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.SetUpstreamConnected(true)
	c.SetClientAttached(true)
	c.IncrementPacketsToClient()
	c.IncrementPacketsToServer()

	snap := c.Snapshot()
	if !snap.UpstreamConnected || !snap.ClientAttached {
		t.Error("expected snapshot to reflect connected/attached state")
	}
	if snap.PacketsToClient != 1 || snap.PacketsToServer != 1 {
		t.Error("expected snapshot packet counts to match")
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.SetUpstreamConnected(true)
	c.SetClientAttached(true)
	c.IncrementPacketsToClient()
	c.IncrementBootstrapErrors()

	c.Reset()

	if c.IsUpstreamConnected() || c.IsClientAttached() {
		t.Error("expected connection state reset")
	}
	if c.PacketsToClient.Load() != 0 || c.BootstrapErrors.Load() != 0 {
		t.Error("expected counters reset to 0")
	}
}
