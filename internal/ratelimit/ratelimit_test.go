package ratelimit

import (
	"testing"
	"time"
)

func TestNewDisabledAlwaysAllows(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.Allow("1.2.3.4:9999") {
			t.Fatalf("expected disabled limiter to always allow")
		}
	}
}

func TestAllowEnforcesPerMinuteLimit(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMinute: 3, BanDurationSeconds: 60})

	for i := 0; i < 3; i++ {
		if !l.Allow("5.6.7.8:1111") {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if l.Allow("5.6.7.8:1111") {
		t.Fatalf("expected 4th request within a minute to be rejected")
	}
	if !l.IsBanned("5.6.7.8:2222") {
		t.Fatalf("expected ip banned regardless of source port")
	}
}

func TestAllowTracksIPsIndependently(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMinute: 1, BanDurationSeconds: 60})

	if !l.Allow("1.1.1.1:1") {
		t.Fatalf("expected first request from 1.1.1.1 to be allowed")
	}
	if !l.Allow("2.2.2.2:1") {
		t.Fatalf("expected first request from a different ip to be allowed")
	}
	if l.Allow("1.1.1.1:1") {
		t.Fatalf("expected second request from 1.1.1.1 to be rejected")
	}
}

func TestAllowFallsBackToRawStringWithoutPort(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMinute: 1, BanDurationSeconds: 60})
	if !l.Allow("not-a-host-port") {
		t.Fatalf("expected first request to be allowed")
	}
	if l.Allow("not-a-host-port") {
		t.Fatalf("expected second request from the same raw address to be rejected")
	}
}

func TestBanExpiresAfterDuration(t *testing.T) {
	l := New(Config{Enabled: true, MaxRequestsPerMinute: 1, BanDurationSeconds: 0})
	l.Allow("9.9.9.9:1")
	l.Allow("9.9.9.9:1") // triggers ban with 0s duration, i.e. already expired

	time.Sleep(time.Millisecond)
	if l.IsBanned("9.9.9.9:1") {
		t.Fatalf("expected a zero-duration ban to have already expired")
	}
}
