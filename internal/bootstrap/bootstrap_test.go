package bootstrap

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubEndpoint struct {
	host string
	port int
}

func (s *stubEndpoint) SetPendingEndpoint(host string, port int) {
	s.host = host
	s.port = port
}

func newTestServer(t *testing.T, cfg Config, upstream *httptest.Server) (*Server, *stubEndpoint) {
	t.Helper()
	cfg.UpstreamScheme = "http"
	if cfg.PrimaryHost == "" {
		cfg.PrimaryHost = strings.TrimPrefix(upstream.URL, "http://")
	}
	ep := &stubEndpoint{}
	s := New(cfg, ep, tls.Certificate{})
	return s, ep
}

func doRequest(s *Server, method, path, host, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Host = host
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleBootstrapRewritesServerAndPort(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "server|old.example.com\nport|1234\ntype|0\n")
	}))
	defer upstream.Close()

	s, ep := newTestServer(t, Config{ListenPort: 9999}, upstream)
	host := strings.TrimPrefix(upstream.URL, "http://")

	w := doRequest(s, http.MethodPost, bootstrapPath, host, "platform=1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ep.host != "old.example.com" || ep.port != 1234 {
		t.Fatalf("expected pending endpoint old.example.com:1234, got %s:%d", ep.host, ep.port)
	}
	body := w.Body.String()
	if !strings.Contains(body, "server|127.0.0.1") {
		t.Fatalf("expected rewritten server line, got %q", body)
	}
	if !strings.Contains(body, "port|9999") {
		t.Fatalf("expected rewritten port line, got %q", body)
	}
	if !strings.Contains(body, "type2|1") {
		t.Fatalf("expected forced type2|1, got %q", body)
	}
}

func TestHandleBootstrapStripsMaintenanceWhenIgnored(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "server|old.example.com\nport|1234\n#maint|Down for maintenance|\nmaint|1\n")
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, Config{ListenPort: 9999, IgnoreMaintenance: true}, upstream)
	host := strings.TrimPrefix(upstream.URL, "http://")

	w := doRequest(s, http.MethodPost, bootstrapPath, host, "platform=1")
	body := w.Body.String()
	if strings.Contains(body, "#maint") || strings.Contains(body, "maint|1") {
		t.Fatalf("expected maintenance lines stripped, got %q", body)
	}
}

func TestHandleBootstrapRejectsPlatformZeroWithoutLoginURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "server|old.example.com\nport|1234\n")
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, Config{ListenPort: 9999}, upstream)
	host := strings.TrimPrefix(upstream.URL, "http://")

	w := doRequest(s, http.MethodPost, bootstrapPath, host, "platform=0")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when platform=0 response lacks loginurl|, got %d", w.Code)
	}
}

func TestHandlePassthroughStripsHopByHopAndRecomputesLength(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Upstream", "yes")
		io.WriteString(w, "hello world")
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, Config{}, upstream)
	host := strings.TrimPrefix(upstream.URL, "http://")

	w := doRequest(s, http.MethodGet, "/some/path", host, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "hello world" {
		t.Fatalf("expected passthrough body, got %q", w.Body.String())
	}
	if w.Header().Get("Connection") != "" {
		t.Fatalf("expected Connection header stripped")
	}
	if w.Header().Get("X-Upstream") != "yes" {
		t.Fatalf("expected non-hop-by-hop header preserved")
	}
	if w.Header().Get("Content-Length") != "11" {
		t.Fatalf("expected recomputed Content-Length 11, got %s", w.Header().Get("Content-Length"))
	}
}

func TestHandlePassthroughFallsBackOnNotFound(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "fallback ok")
	}))
	defer fallback.Close()

	primaryHost := strings.TrimPrefix(primary.URL, "http://")
	fallbackHost := strings.TrimPrefix(fallback.URL, "http://")

	s, _ := newTestServer(t, Config{
		PrimaryHost:      primaryHost,
		InterceptDomains: []string{primaryHost, fallbackHost},
	}, primary)

	w := doRequest(s, http.MethodGet, "/anything", fallbackHost, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after falling back, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "fallback ok" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestHealthzEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	s, _ := newTestServer(t, Config{}, upstream)
	w := doRequest(s, http.MethodGet, "/healthz", "anything", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("expected 200 'ok', got %d %q", w.Code, w.Body.String())
	}
}
