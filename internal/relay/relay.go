// Package relay implements the dual-endpoint relay state machine: the
// single-consumer event loop that owns the inbound (client-facing) and
// outbound (upstream-facing) datagram peers, applies the packet
// interception rules, and drives the outbound connect/retry cycle.
// Grounded on internal/proxy.UpstreamLoop's retry-and-reconnect shape
// and internal/connection.Backoff, reworked to the capped-linear
// (250ms*attempt, max 3000ms, 12 attempts) formula spec.md prescribes
// instead of the teacher's randomized exponential jitter.
package relay

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/tankrelay/tankrelay/pkg/errors"

	"github.com/tankrelay/tankrelay/internal/command"
	"github.com/tankrelay/tankrelay/internal/hooks"
	"github.com/tankrelay/tankrelay/internal/metrics"
	"github.com/tankrelay/tankrelay/internal/packet"
	"github.com/tankrelay/tankrelay/internal/scheduler"
	"github.com/tankrelay/tankrelay/internal/variant"
	"github.com/tankrelay/tankrelay/internal/world"
	"github.com/tankrelay/tankrelay/pkg/logger"
)

// State is the relay's connection lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateWaitingClient
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingClient:
		return "waiting_client"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 3000 * time.Millisecond
	maxRetries     = 12

	outboundRetryTag = "relay:outbound-retry"
)

// backoff implements spec's "250ms * attempt, capped at 3000ms" retry
// delay, attempt counting from 1.
func backoff(attempt int) time.Duration {
	d := retryBaseDelay * time.Duration(attempt)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

// PendingEndpoint is the (host, port) learned from either the HTTPS
// bootstrap response or an in-band OnSendToServer rewrite. The most
// recently set value always wins (see the Open Question resolution in
// SPEC_FULL.md): a stale bootstrap-derived endpoint does not survive a
// subsequent in-band handoff, and vice versa.
type PendingEndpoint struct {
	Host string
	Port int
}

// Valid reports whether e names a usable upstream target.
func (e PendingEndpoint) Valid() bool {
	h := strings.TrimRight(strings.TrimSpace(e.Host), "\x00")
	return h != "" && e.Port >= 1 && e.Port <= 65535
}

// InboundPeer is the relay's view of the client-facing datagram
// listener, satisfied by *internal/transport.Inbound.
type InboundPeer interface {
	ReadFrame(buf []byte) (n int, from netip.AddrPort, err error)
	SendToClient(frame []byte) (bool, error)
	ClientAddr() (netip.AddrPort, bool)
}

// OutboundPeer is the relay's view of a dialed upstream datagram
// socket, satisfied by *internal/transport.Outbound.
type OutboundPeer interface {
	ReadFrame(buf []byte) (int, error)
	Send(frame []byte) error
	Close() error
}

// Dialer opens a new OutboundPeer to host:port. Swappable so tests can
// substitute an in-memory fake instead of dialing real UDP sockets.
type Dialer func(host string, port int) (OutboundPeer, error)

// Config configures a Relay.
type Config struct {
	ListenPort int // the proxy's own UDP listen port, advertised to the client
}

// Relay owns the inbound/outbound peers and all state the spec
// requires be mutated only from a single consumer: every mutation
// happens inside a closure drained from events by Run, so no field
// below needs its own lock even though reader goroutines and scheduled
// timers run concurrently with the loop.
type Relay struct {
	cfg    Config
	dialer Dialer

	inbound  InboundPeer
	outbound OutboundPeer

	state       State
	pending     PendingEndpoint
	outboundGen uint64
	retries     int

	world     *world.State
	commands  *command.Registry
	hooks     *hooks.Bus
	scheduler *scheduler.Scheduler
	metrics   *metrics.Collector

	events  chan func()
	closeMu sync.Mutex
	closed  bool
}

// New builds a Relay. inbound must already be listening; outbound is
// nil until a pending endpoint triggers a successful dial.
func New(cfg Config, inbound InboundPeer, dialer Dialer, commands *command.Registry, bus *hooks.Bus, sched *scheduler.Scheduler, coll *metrics.Collector) *Relay {
	return &Relay{
		cfg:       cfg,
		dialer:    dialer,
		inbound:   inbound,
		state:     StateIdle,
		world:     world.New(),
		commands:  commands,
		hooks:     bus,
		scheduler: sched,
		metrics:   coll,
		events:    make(chan func(), 1024),
	}
}

// State returns the relay's current lifecycle stage. Safe to call from
// any goroutine only for observability purposes (e.g. /status); it is
// not synchronized with in-flight loop events.
func (r *Relay) State() State { return r.state }

// post enqueues fn to run on the loop goroutine. Silently drops the
// event (logging a warning) if the queue is saturated, rather than
// blocking a reader goroutine indefinitely.
func (r *Relay) post(fn func()) {
	select {
	case r.events <- fn:
	default:
		logger.Default.Warn("relay: event queue full, dropping event")
	}
}

// SetPendingEndpoint implements internal/bootstrap.EndpointSetter,
// letting the HTTPS listener (which runs on its own goroutines) hand
// off a freshly learned upstream endpoint onto the relay loop.
func (r *Relay) SetPendingEndpoint(host string, port int) {
	r.post(func() { r.onBootstrapEndpoint(host, port) })
}

func (r *Relay) onBootstrapEndpoint(host string, port int) {
	r.pending = PendingEndpoint{Host: host, Port: port}
	logger.Default.Info("relay: bootstrap set pending endpoint %s:%d", host, port)
	if r.state == StateConnected && r.outbound == nil {
		r.initiateOutboundConnect()
	}
}

// Run drives the event loop until ctx is canceled, then performs a
// graceful shutdown: cancel all scheduled tasks, disconnect both peers
// now, and return.
func (r *Relay) Run(ctx context.Context) {
	r.state = StateWaitingClient
	go r.readInboundLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case fn := <-r.events:
			fn()
		}
	}
}

func (r *Relay) shutdown() {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	r.scheduler.CancelAll()
	r.disconnectOutboundNow()
	r.state = StateIdle
	logger.Default.Info("relay: shut down")
}

func (r *Relay) isClosed() bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	return r.closed
}

func (r *Relay) readInboundLoop(ctx context.Context) {
	buf := make([]byte, 65536)
	for {
		if ctx.Err() != nil || r.isClosed() {
			return
		}
		n, from, err := r.inbound.ReadFrame(buf)
		if err != nil {
			if ctx.Err() != nil || r.isClosed() {
				return
			}
			logger.Default.Warn("relay: inbound read error: %v", err)
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		r.post(func() { r.onInboundFrame(frame, from) })
	}
}

func (r *Relay) readOutboundLoop(gen uint64, conn OutboundPeer) {
	buf := make([]byte, 65536)
	for {
		n, err := conn.ReadFrame(buf)
		if err != nil {
			r.post(func() { r.onOutboundDisconnected(gen) })
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		r.post(func() { r.onOutboundFrame(gen, frame) })
	}
}

// onInboundFrame handles one client->proxy datagram: server-bound
// interception rules, then forwarding to the outbound peer if present.
func (r *Relay) onInboundFrame(frame []byte, from netip.AddrPort) {
	if r.state != StateConnected {
		r.state = StateConnected
		r.metrics.SetClientAttached(true)
		logger.Default.Info("relay: client connected from %s", from)
		if r.pending.Valid() && r.outbound == nil {
			r.initiateOutboundConnect()
		} else if r.outbound == nil {
			logger.Default.Info("relay: waiting for bootstrap or in-band handoff to learn upstream endpoint")
		}
	}

	p := packet.Classify(frame)
	ctx := &hooks.Context{Direction: hooks.ServerBound, Parsed: p, Raw: frame}
	r.hooks.Dispatch(ctx)
	if ctx.Canceled {
		return
	}
	frame = ctx.Raw

	if r.applyServerBoundRules(p) {
		return
	}

	if r.outbound == nil {
		r.metrics.IncrementPacketsDropped()
		return
	}
	if err := r.outbound.Send(frame); err != nil {
		logger.Default.Error("relay: sending to outbound: %v", err)
		r.metrics.IncrementPacketsDropped()
		return
	}
	r.metrics.IncrementPacketsToServer()
}

// applyServerBoundRules implements spec's server-bound interception
// table. Returns true if the frame was canceled (must not be
// forwarded).
func (r *Relay) applyServerBoundRules(p packet.Packet) bool {
	switch p.ID {
	case packet.IDJoinRequest:
		r.world.Clear()
		return false
	case packet.IDInput:
		for _, candidate := range inputCandidates(p) {
			if r.commands.Execute(candidate) {
				return true
			}
		}
		return false
	case packet.IDQuit:
		r.disconnectInboundNormal()
		r.disconnectOutboundNow()
		return true
	case packet.IDDisconnect:
		r.disconnectInboundNow()
		r.disconnectOutboundNow()
		return true
	default:
		return false
	}
}

// inputCandidates collects up to two candidate command strings from an
// Input packet: the cached "text" key first, then a fallback line
// parser accepting both "text|..." and "|text|..." stripped-prefix
// forms, matching spec.md's classifyText fallback path.
func inputCandidates(p packet.Packet) []string {
	var out []string
	if p.InputText != "" {
		out = append(out, p.InputText)
	}
	if p.Text != nil {
		for _, e := range p.Text.Entries() {
			if e.Key == "text" && len(e.Values) > 0 && e.Values[0] != "" {
				if len(out) == 0 || out[0] != e.Values[0] {
					out = append(out, e.Values[0])
				}
			}
		}
	}
	return out
}

// onOutboundFrame handles one upstream->proxy datagram: client-bound
// interception rules (including the OnSendToServer rewrite), then
// forwarding to the inbound peer if a client address is known.
func (r *Relay) onOutboundFrame(gen uint64, frame []byte) {
	if gen != r.outboundGen {
		return // stale reader from a superseded outbound connection
	}

	p := packet.Classify(frame)
	ctx := &hooks.Context{Direction: hooks.ClientBound, Parsed: p, Raw: frame}
	r.hooks.Dispatch(ctx)
	if ctx.Canceled {
		return
	}
	frame = ctx.Raw

	switch p.ID {
	case packet.IDOnSpawn:
		if participant, ok := parseSpawnParticipant(p); ok {
			r.world.OnSpawn(participant)
		}
	case packet.IDOnRemove:
		if netID, ok := firstInt32Arg(p); ok {
			r.world.OnRemove(netID)
		}
	case packet.IDOnSendToServer:
		if rewritten, pending, ok := rewriteOnSendToServer(p, r.cfg.ListenPort); ok {
			frame = rewritten
			r.pending = pending
			logger.Default.Info("relay: in-band handoff to %s:%d", pending.Host, pending.Port)
			if r.outbound == nil {
				r.initiateOutboundConnect()
			}
			// else: outbound already exists; keep pending for the next
			// reconnect cycle, per spec.
		}
	}

	if r.inbound == nil {
		return
	}
	sent, err := r.inbound.SendToClient(frame)
	if err != nil {
		logger.Default.Error("relay: sending to client: %v", err)
		r.metrics.IncrementPacketsDropped()
		return
	}
	if !sent {
		r.metrics.IncrementPacketsDropped()
		return
	}
	r.metrics.IncrementPacketsToClient()
}

// firstInt32Arg coerces CALL_FUNCTION argument index 1 (the function
// name occupies index 0) to an int32, for OnRemove's bare net-id
// argument.
func firstInt32Arg(p packet.Packet) (int32, bool) {
	v, ok := p.Variants.Get(1)
	if !ok {
		return 0, false
	}
	return variantToInt32(v), true
}

func variantToInt32(v variant.Value) int32 {
	switch v.Tag {
	case variant.TagUnsigned:
		return int32(v.U32)
	case variant.TagSigned:
		return v.I32
	case variant.TagFloat:
		return int32(v.Float)
	default:
		return 0
	}
}

// parseSpawnParticipant decodes the OnSpawn participant fields from
// argument index 1: a pipe-delimited record (consistent with the rest
// of this protocol's text encoding) carrying netID/userID/name/type
// keys; SpawnTag is set to the whole record string. This field layout is not pinned down by the
// specification; see DESIGN.md for the judgment call.
func parseSpawnParticipant(p packet.Packet) (world.Participant, bool) {
	v, ok := p.Variants.Get(1)
	if !ok || v.Tag != variant.TagString {
		return world.Participant{}, false
	}
	fields := parsePipeRecord(v.Str)
	netID, ok := fields["netID"]
	if !ok {
		return world.Participant{}, false
	}
	var participant world.Participant
	participant.NetID = atoi32(netID)
	participant.UserID = atoi32(fields["userID"])
	participant.Name = fields["name"]
	participant.Type = fields["type"]
	participant.SpawnTag = v.Str
	return participant, true
}

func parsePipeRecord(s string) map[string]string {
	out := make(map[string]string)
	parts := strings.Split(s, "|")
	for i := 0; i+1 < len(parts); i += 2 {
		out[parts[i]] = parts[i+1]
	}
	return out
}

func atoi32(s string) int32 {
	var n int32
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int32(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// rewriteOnSendToServer implements spec's in-band handoff rewrite:
// parse args [function-name, port, token, user-id, route-text,
// login-mode, username], derive the pending endpoint from
// (address-from-route, port-from-args), then rewrite argument 1's port
// to listenPort and argument 4's key to 127.0.0.1 while preserving the
// rest of the route text after the first '|'. Returns the rebuilt tank
// frame (original header bytes, preserved trailing-NUL) and the
// derived endpoint.
func rewriteOnSendToServer(p packet.Packet, listenPort int) ([]byte, PendingEndpoint, bool) {
	portVal, ok := p.Variants.Get(1)
	if !ok {
		return nil, PendingEndpoint{}, false
	}
	routeVal, ok := p.Variants.Get(4)
	if !ok || routeVal.Tag != variant.TagString {
		return nil, PendingEndpoint{}, false
	}

	origPort := int(variantToInt32(portVal))
	route := routeVal.Str
	var address, rest string
	if idx := strings.IndexByte(route, '|'); idx >= 0 {
		address, rest = route[:idx], route[idx:]
	} else {
		address, rest = route, ""
	}
	pending := PendingEndpoint{Host: address, Port: origPort}

	list := p.Variants
	list.Set(1, variant.NewUnsigned(uint32(listenPort)))
	list.Set(4, variant.NewString("127.0.0.1"+rest))
	extra := variant.Encode(list)

	frame := packet.EmitTank(p.Header, extra, p.HadTrailNUL)
	return frame, pending, true
}

// initiateOutboundConnect implements spec's outbound-connect-attempt
// transition. Must only be called from the loop goroutine.
func (r *Relay) initiateOutboundConnect() {
	if r.outbound != nil {
		r.disconnectOutboundNow()
		r.scheduleOutboundRetry(1)
		return
	}
	if !r.pending.Valid() {
		return
	}

	host, port := r.pending.Host, r.pending.Port
	r.outboundGen++
	gen := r.outboundGen
	r.retries = 0
	r.dialOutboundAsync(gen, host, port, 1)
}

func (r *Relay) dialOutboundAsync(gen uint64, host string, port, attempt int) {
	go func() {
		conn, err := r.dialer(host, port)
		r.post(func() { r.onOutboundDialResult(gen, host, port, attempt, conn, err) })
	}()
}

func (r *Relay) onOutboundDialResult(gen uint64, host string, port, attempt int, conn OutboundPeer, err error) {
	if gen != r.outboundGen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		r.metrics.IncrementUpstreamRetries()
		wrapped := pkgerrors.Wrap(pkgerrors.KindUpstreamConnect, fmt.Sprintf("dial %s:%d", host, port), err)
		if attempt >= maxRetries {
			logger.Default.Error("relay: %v (giving up after %d attempts)", wrapped, attempt)
			return
		}
		logger.Default.Warn("relay: %v (attempt %d/%d)", wrapped, attempt, maxRetries)
		r.retries = attempt
		r.scheduler.Schedule(outboundRetryTag, backoff(attempt), func() {
			r.post(func() { r.retryOutboundConnect(gen, host, port, attempt+1) })
		})
		return
	}

	r.outbound = conn
	r.retries = 0
	r.pending = PendingEndpoint{}
	r.metrics.SetUpstreamConnected(true)
	logger.Default.Info("relay: outbound connected to %s:%d", host, port)
	go r.readOutboundLoop(gen, conn)
}

func (r *Relay) retryOutboundConnect(gen uint64, host string, port, attempt int) {
	if gen != r.outboundGen {
		return
	}
	r.dialOutboundAsync(gen, host, port, attempt)
}

func (r *Relay) scheduleOutboundRetry(attempt int) {
	if !r.pending.Valid() {
		return
	}
	host, port := r.pending.Host, r.pending.Port
	gen := r.outboundGen
	r.scheduler.Schedule(outboundRetryTag, backoff(attempt), func() {
		r.post(func() { r.retryOutboundConnect(gen, host, port, attempt) })
	})
}

// onOutboundDisconnected handles the outbound peer's read loop ending
// (the underlying connection closed or errored).
func (r *Relay) onOutboundDisconnected(gen uint64) {
	if gen != r.outboundGen {
		return
	}
	r.outbound = nil
	r.metrics.SetUpstreamConnected(false)
	logger.Default.Info("relay: outbound disconnected")

	if r.inbound != nil && r.pending.Valid() {
		r.initiateOutboundConnect()
		return
	}
	r.disconnectInboundLater()
}

func (r *Relay) disconnectOutboundNow() {
	if r.outbound == nil {
		return
	}
	r.outboundGen++ // fences the reader goroutine's pending events
	_ = r.outbound.Close()
	r.outbound = nil
	r.metrics.SetUpstreamConnected(false)
}

func (r *Relay) disconnectInboundNormal() {
	r.retries = 0
	r.world.Clear()
	if !r.pending.Valid() {
		r.pending = PendingEndpoint{}
	}
	r.state = StateWaitingClient
	r.metrics.SetClientAttached(false)
}

func (r *Relay) disconnectInboundNow() {
	r.disconnectInboundNormal()
}

// disconnectInboundLater schedules the same effect as
// disconnectInboundNormal after a short grace period, matching spec's
// "disconnect inbound with later semantics" when the outbound side
// drops and there is no valid handoff target to retry toward.
func (r *Relay) disconnectInboundLater() {
	r.scheduler.Schedule("relay:inbound-disconnect", 1*time.Second, func() {
		r.post(func() { r.disconnectInboundNormal() })
	})
}
