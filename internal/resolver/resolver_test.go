package resolver

import "testing"

func TestNewSystemDefault(t *testing.T) {
	r := New("")
	if !r.system {
		t.Fatalf("expected empty dnsServer to select system resolver")
	}
	r2 := New("system")
	if !r2.system {
		t.Fatalf("expected 'system' to select system resolver")
	}
}

func TestNewWellKnownResolvers(t *testing.T) {
	cases := map[string]string{
		"cloudflare": "1.1.1.1:53",
		"google":     "8.8.8.8:53",
		"quad9":      "9.9.9.9:53",
	}
	for name, addr := range cases {
		r := New(name)
		if r.system {
			t.Fatalf("%s: expected non-system resolver", name)
		}
		if len(r.addrs) != 1 || r.addrs[0] != addr {
			t.Fatalf("%s: expected addrs [%s], got %v", name, addr, r.addrs)
		}
	}
}

func TestNewCustomCommaSeparatedList(t *testing.T) {
	r := New("10.0.0.1, 10.0.0.2:5353")
	if r.system {
		t.Fatalf("expected custom resolver list, not system")
	}
	if len(r.addrs) != 2 {
		t.Fatalf("expected 2 addrs, got %v", r.addrs)
	}
	if r.addrs[0] != "10.0.0.1:53" {
		t.Fatalf("expected default port appended, got %q", r.addrs[0])
	}
	if r.addrs[1] != "10.0.0.2:5353" {
		t.Fatalf("expected explicit port preserved, got %q", r.addrs[1])
	}
}

func TestNetResolverRoundRobins(t *testing.T) {
	r := New("10.0.0.1:53,10.0.0.2:53")
	first := r.netResolver()
	second := r.netResolver()
	if first == nil || second == nil {
		t.Fatalf("expected non-nil resolvers")
	}
	if got := r.nextIndex.Load(); got != 2 {
		t.Fatalf("expected the round-robin cursor to advance once per lookup, got %d", got)
	}
}
