// Package bootstrap serves the HTTPS side of the proxy: the game's
// server-discovery bootstrap endpoint (rewritten to hand the client
// back to this proxy's UDP listener) and a generic reverse-proxy
// passthrough for every other intercepted request, mirroring
// internal/proxy.HttpServe's http.Server/graceful-shutdown shape and
// internal/connection.Dial's TLS-dial idiom, generalized from a
// single stratum upstream to a multi-host, multi-IP retry fan-out.
package bootstrap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tankrelay/tankrelay/internal/ratelimit"
	"github.com/tankrelay/tankrelay/internal/resolver"
	"github.com/tankrelay/tankrelay/internal/socksdialer"
	"github.com/tankrelay/tankrelay/internal/textcodec"
	"github.com/tankrelay/tankrelay/pkg/logger"
	pkgmetrics "github.com/tankrelay/tankrelay/pkg/metrics"
)

const (
	bootstrapPath  = "/growtopia/server_data.php"
	perAttemptWait = 2500 * time.Millisecond
)

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade",
}

type sniContextKey struct{}

// withSNI attaches the hostname that should appear in the TLS
// ClientHello even though the connection dials a literal IP address.
func withSNI(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, sniContextKey{}, host)
}

func sniFromContext(ctx context.Context) string {
	h, _ := ctx.Value(sniContextKey{}).(string)
	return h
}

// EndpointSetter receives the (server, port) pair parsed out of a
// successful bootstrap response, becoming the relay's pending
// endpoint.
type EndpointSetter interface {
	SetPendingEndpoint(host string, port int)
}

// Config configures the bootstrap/reverse-proxy listener.
type Config struct {
	ListenAddr        string
	PrimaryHost       string
	InterceptDomains  []string // includes PrimaryHost plus fixed fallbacks
	ListenPort        int      // the proxy's own UDP listen port, injected into the rewritten body
	IgnoreMaintenance bool
	Resolver          *resolver.Resolver
	SocksDialer       *socksdialer.Dialer
	HTTPClient        *http.Client
	Metrics           *pkgmetrics.Metrics
	RateLimit         *ratelimit.Limiter // nil disables gating

	// UpstreamScheme overrides the scheme used to reach candidate
	// IPs/hosts. Defaults to "https"; tests point it at a plain-HTTP
	// httptest.Server.
	UpstreamScheme string
}

// Server is the HTTPS bootstrap/reverse-proxy listener.
type Server struct {
	cfg      Config
	endpoint EndpointSetter
	srv      *http.Server
}

// New builds a Server. cert must already cover cfg.InterceptDomains.
func New(cfg Config, endpoint EndpointSetter, cert tls.Certificate) *Server {
	if cfg.HTTPClient == nil {
		dial := (&net.Dialer{Timeout: perAttemptWait}).DialContext
		if cfg.SocksDialer != nil && cfg.SocksDialer.Enabled() {
			dial = cfg.SocksDialer.DialContext
		}
		transport := &http.Transport{
			DialContext: dial,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				raw, err := dial(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				serverName := sniFromContext(ctx)
				if serverName == "" {
					serverName, _, _ = net.SplitHostPort(addr)
				}
				tlsConn := tls.Client(raw, &tls.Config{
					InsecureSkipVerify: true,
					ServerName:         serverName,
				})
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					raw.Close()
					return nil, err
				}
				return tlsConn, nil
			},
		}
		cfg.HTTPClient = &http.Client{
			Timeout:   perAttemptWait,
			Transport: transport,
		}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = pkgmetrics.Default
	}
	if cfg.UpstreamScheme == "" {
		cfg.UpstreamScheme = "https"
	}

	s := &Server{cfg: cfg, endpoint: endpoint}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc(bootstrapPath, s.handleBootstrap)
	mux.HandleFunc("/", s.handlePassthrough)

	s.srv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.rateLimited(mux),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
		},
	}
	return s
}

// rateLimited wraps next so a source IP exceeding cfg.RateLimit is
// rejected before reaching any handler, including /healthz.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.cfg.RateLimit == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RateLimit.Allow(r.RemoteAddr) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve blocks serving TLS until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutCtx)
	}()

	logger.Default.Info("bootstrap: listening on %s", s.cfg.ListenAddr)
	err := s.srv.ListenAndServeTLS("", "")
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Metrics.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// candidateHosts dedups (requestHost, primary) case-insensitively and
// pads with any configured intercept domains not already present.
func (s *Server) candidateHosts(requestHost string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" {
			return
		}
		key := strings.ToLower(h)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, h)
	}
	add(requestHost)
	add(s.cfg.PrimaryHost)
	for _, d := range s.cfg.InterceptDomains {
		add(d)
	}
	return out
}

func (s *Server) resolveIPv4(ctx context.Context, host string) []string {
	if s.cfg.Resolver == nil {
		return []string{host}
	}
	ips, err := s.cfg.Resolver.LookupIPv4(ctx, host, 2)
	if err != nil || len(ips) == 0 {
		return []string{host}
	}
	return ips
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	s.cfg.Metrics.IncrementRequests()

	if err := r.ParseForm(); err != nil {
		s.cfg.Metrics.IncrementErrors()
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	form := r.Form
	wantsPlatformZero := form.Get("platform") == "0"

	hosts := s.candidateHosts(r.Host)
	var lastErr error
	for _, host := range hosts {
		for _, ip := range s.resolveIPv4(r.Context(), host) {
			body, err := s.fetchBootstrap(r.Context(), host, ip, form)
			if err != nil {
				lastErr = err
				continue
			}
			if wantsPlatformZero && !strings.Contains(body, "loginurl|") {
				lastErr = fmt.Errorf("bootstrap: response for %s missing loginurl| for platform=0", host)
				continue
			}
			rewritten, ok := s.rewriteBootstrap(body)
			if !ok {
				lastErr = fmt.Errorf("bootstrap: could not parse response from %s", host)
				continue
			}
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, rewritten)
			return
		}
	}

	s.cfg.Metrics.IncrementErrors()
	logger.Default.Error("bootstrap: exhausted all candidates: %v", lastErr)
	http.Error(w, "upstream unavailable", http.StatusInternalServerError)
}

func (s *Server) fetchBootstrap(ctx context.Context, host, ip string, form url.Values) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, perAttemptWait)
	defer cancel()
	ctx = withSNI(ctx, host)

	target := s.cfg.UpstreamScheme + "://" + ip + bootstrapPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Host = host
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("bootstrap: upstream %s returned %d", host, resp.StatusCode)
	}
	return string(b), nil
}

// rewriteBootstrap normalizes line endings, rewrites server/port,
// forces type/type2, optionally strips the maintenance flag, and
// re-appends bare sentinel lines that contain no '|'.
func (s *Server) rewriteBootstrap(body string) (string, bool) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\rtype|", "\ntype|")
	body = strings.ReplaceAll(body, "\rbeta_type|", "\nbeta_type|")
	body = strings.ReplaceAll(body, "\rmeta|", "\nmeta|")

	var sentinels []string
	var kept bytes.Buffer
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.Contains(line, "|") {
			sentinels = append(sentinels, line)
			continue
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}

	t := textcodec.Parse(kept.Bytes(), textcodec.DefaultDelimiter)

	origServer := t.Get("server", 0)
	origPort := t.GetInt("port", 0, 0)
	if origServer == "" {
		return "", false
	}
	s.endpoint.SetPendingEndpoint(origServer, origPort)

	t.Set("server", "127.0.0.1")
	t.Set("port", strconv.Itoa(s.cfg.ListenPort))
	if !t.Contains("type") {
		t.Set("type", "1")
	}
	t.Set("type2", "1")

	if s.cfg.IgnoreMaintenance && t.Contains("#maint") {
		t.Remove("#maint")
		t.Remove("maint")
	}

	out := string(t.Emit())
	for _, sentinel := range sentinels {
		out += sentinel + "\n"
	}
	return out, true
}

func (s *Server) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	s.cfg.Metrics.IncrementRequests()

	var hosts []string
	if s.isInterceptDomain(r.Host) {
		hosts = s.orderedHosts(s.cfg.PrimaryHost, r.Host)
	} else {
		hosts = s.orderedHosts(r.Host, s.cfg.PrimaryHost)
	}

	var lastStatus int
	var lastErr error
	for _, host := range hosts {
		for _, ip := range s.resolveIPv4(r.Context(), host) {
			resp, err := s.forwardPassthrough(r, host, ip)
			if err != nil {
				lastErr = err
				continue
			}
			if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
				lastStatus = resp.StatusCode
				resp.Body.Close()
				continue
			}
			s.writeResponse(w, resp)
			return
		}
	}

	s.cfg.Metrics.IncrementErrors()
	if lastStatus != 0 {
		http.Error(w, "upstream error", lastStatus)
		return
	}
	logger.Default.Error("bootstrap: passthrough exhausted all candidates: %v", lastErr)
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}

func (s *Server) isInterceptDomain(host string) bool {
	h := strings.ToLower(host)
	for _, d := range s.cfg.InterceptDomains {
		if strings.ToLower(d) == h {
			return true
		}
	}
	return false
}

func (s *Server) orderedHosts(first, second string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range []string{first, second} {
		h = strings.TrimSpace(h)
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		out = append(out, h)
	}
	return out
}

func (s *Server) forwardPassthrough(r *http.Request, host, ip string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), perAttemptWait)
	defer cancel()
	ctx = withSNI(ctx, host)

	var bodyBytes []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		bodyBytes = b
	}

	target := s.cfg.UpstreamScheme + "://" + ip + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Host = host
	copyHeaders(req.Header, r.Header)
	stripHopByHop(req.Header)
	req.ContentLength = int64(len(bodyBytes))

	return s.cfg.HTTPClient.Do(req)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "reading upstream response", http.StatusBadGateway)
		return
	}
	copyHeaders(w.Header(), resp.Header)
	stripHopByHop(w.Header())
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(b)
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
