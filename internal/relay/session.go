package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matst80/unirelay/internal/httpx"
	"github.com/matst80/unirelay/internal/obs"
	"github.com/matst80/unirelay/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of a Session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Stream is the message oriented connection a Session runs over. *websocket.Conn satisfies it.
type Stream interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var (
	errSessionClosed   = errors.New("session closed")
	errAuthFailed      = errors.New("handshake rejected")
	errPendingOverflow = errors.New("pre-auth queue full")
	errTunnelClosed    = errors.New("tunnel closed by target")
)

// Engine carries the pipeline collaborators and limits shared by all sessions.
type Engine struct {
	Upstream *Upstream
	Tunnels  *TunnelManager
	Limiter  *ratelimit.Limiter
	// Handshake validates the first frame; CheckHandshake when nil.
	Handshake func([]byte) bool
	// PingInterval is the liveness probe period; zero disables probes.
	PingInterval time.Duration
	// MaxPending caps messages queued while the handshake is in flight.
	MaxPending   int
	WriteTimeout time.Duration
}

func (e *Engine) checkHandshake(raw []byte) bool {
	if e.Handshake != nil {
		return e.Handshake(raw)
	}
	return CheckHandshake(raw)
}

func (e *Engine) writeTimeout() time.Duration {
	if e.WriteTimeout > 0 {
		return e.WriteTimeout
	}
	return 10 * time.Second
}

// Session owns one stream connection. Messages are processed one at a time in arrival
// order; messages arriving while the handshake is in flight wait in a bounded queue.
type Session struct {
	id     string
	remote string
	stream Stream
	hub    *Hub
	eng    *Engine

	mu          sync.Mutex // guards the fields below
	state       State
	handshaking bool
	pending     [][]byte
	tunnel      net.Conn
	tunnelStart time.Time

	writeMu sync.Mutex
	closed  bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewSession wraps an accepted stream. remote is the peer address used for logging and limits.
func NewSession(stream Stream, remote string, hub *Hub, eng *Engine) *Session {
	return &Session{
		id:     uuid.NewString()[:8],
		remote: remote,
		stream: stream,
		hub:    hub,
		eng:    eng,
		cancel: func() {},
	}
}

// ID returns the short session id used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) fields(f obs.Fields) obs.Fields {
	if f == nil {
		f = obs.Fields{}
	}
	f["session"] = s.id
	f["remote"] = s.remote
	return f
}

// Run serves the session until the stream closes or ctx is cancelled. The session is
// registered with its hub for the duration of the call.
func (s *Session) Run(ctx context.Context) error {
	if err := s.hub.Register(s); err != nil {
		s.closeWith(websocket.CloseTryAgainLater, "Server shutting down")
		_ = s.stream.Close()
		return err
	}
	defer s.hub.Deregister(s)
	obs.Info("session.open", s.fields(nil))

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.group, s.cancel = g, cancel
	s.mu.Unlock()
	defer cancel()

	inbox := make(chan []byte, 16)
	s.spawn(func() error { return s.readLoop(gctx, inbox) })
	s.spawn(func() error { return s.processLoop(gctx, inbox) })
	s.spawn(func() error { s.pingLoop(gctx); return nil })
	s.spawn(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()
	s.shutdown()
	switch {
	case err == nil, errors.Is(err, errSessionClosed), errors.Is(err, errTunnelClosed), errors.Is(err, context.Canceled):
		err = nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		err = nil
	}
	obs.Info("session.closed", s.fields(obs.Fields{"reason": closeReason(err)}))
	return err
}

func closeReason(err error) string {
	if err == nil {
		return "normal"
	}
	return err.Error()
}

// spawn runs fn in the session group, converting a panic into a session error so a single
// faulty session never takes the process down.
func (s *Session) spawn(fn func() error) {
	s.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				obs.Error("session.panic", s.fields(obs.Fields{"panic": fmt.Sprint(r)}))
				obs.ErrorsTotal.WithLabelValues("panic").Inc()
				s.closeWith(websocket.CloseInternalServerErr, "Internal server error")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	})
}

// Close closes the session from outside, e.g. on server shutdown.
func (s *Session) Close() {
	s.closeWith(websocket.CloseGoingAway, "Server shutting down")
}

func (s *Session) readLoop(ctx context.Context, inbox chan<- []byte) error {
	for {
		_, msg, err := s.stream.ReadMessage()
		if err != nil {
			return err
		}
		queued, err := s.queuePending(msg)
		if err != nil {
			obs.Error("session.pending.overflow", s.fields(obs.Fields{"limit": s.eng.MaxPending}))
			obs.ErrorsTotal.WithLabelValues("pending_overflow").Inc()
			s.closeWith(websocket.ClosePolicyViolation, "Too many pending messages")
			return err
		}
		if queued {
			continue
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// queuePending parks msg while a handshake is in flight. The first message of an
// unauthenticated session starts the handshake and is not queued.
func (s *Session) queuePending(msg []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unauthenticated {
		return false, nil
	}
	if !s.handshaking {
		s.handshaking = true
		return false, nil
	}
	if s.eng.MaxPending > 0 && len(s.pending) >= s.eng.MaxPending {
		return false, errPendingOverflow
	}
	s.pending = append(s.pending, msg)
	return true, nil
}

func (s *Session) processLoop(ctx context.Context, inbox <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-inbox:
			var err error
			if s.State() == Unauthenticated {
				err = s.authenticate(ctx, msg)
			} else {
				err = s.dispatch(ctx, msg)
			}
			if err != nil {
				return err
			}
		}
	}
}

func (s *Session) authenticate(ctx context.Context, msg []byte) error {
	if !s.eng.checkHandshake(msg) {
		obs.Info("session.auth.failed", s.fields(nil))
		obs.ErrorsTotal.WithLabelValues("auth").Inc()
		s.closeWith(websocket.ClosePolicyViolation, "Authentication failed")
		return errAuthFailed
	}
	if err := s.write(HandshakeAck); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = Authenticated
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()
	obs.Info("session.auth.ok", s.fields(obs.Fields{"queued": len(queued)}))

	for _, m := range queued {
		if err := s.dispatch(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// dispatch routes one authenticated message. Only tunnel establishment failures and stream
// write failures end the session; per-request failures become error frames.
func (s *Session) dispatch(ctx context.Context, raw []byte) error {
	msg := Classify(raw)
	obs.Debug("session.message", s.fields(obs.Fields{"kind": msg.Kind.String(), "bytes": len(raw)}))
	switch msg.Kind {
	case KindEmpty:
		return s.write(GreetingFrame)
	case KindConnect:
		return s.openTunnel(ctx, msg.Target)
	}
	if s.hasTunnel() {
		return s.forward(raw)
	}
	if msg.Kind == KindOpaque {
		obs.RequestsTotal.WithLabelValues("no_tunnel").Inc()
		return s.write(ErrorFrame)
	}
	return s.relayRequest(ctx, raw)
}

func (s *Session) relayRequest(ctx context.Context, raw []byte) error {
	if !s.eng.Limiter.AllowRequest(s.remoteIP()) {
		obs.RequestsTotal.WithLabelValues("rate_limited").Inc()
		return s.write(RateLimitFrame)
	}
	req, err := httpx.ParseMessage(raw)
	if err != nil {
		obs.Error("request.parse", s.fields(obs.Fields{"err": err.Error()}))
		obs.RequestsTotal.WithLabelValues("parse_error").Inc()
		return s.write(ErrorFrame)
	}
	resp, err := s.eng.Upstream.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return errSessionClosed
		}
		obs.Error("request.upstream", s.fields(obs.Fields{"err": err.Error(), "method": req.Method, "target": req.Target}))
		obs.RequestsTotal.WithLabelValues("upstream_error").Inc()
		return s.write(ErrorFrame)
	}
	obs.Info("request.relayed", s.fields(obs.Fields{"method": req.Method, "target": req.Target, "status": resp.StatusCode, "bytes": len(resp.Body)}))
	obs.RequestsTotal.WithLabelValues("ok").Inc()
	return s.write(FrameResponse(resp))
}

func (s *Session) openTunnel(ctx context.Context, target string) error {
	if s.hasTunnel() {
		obs.Error("tunnel.rejected", s.fields(obs.Fields{"target": target, "err": ErrTunnelActive.Error()}))
		obs.ErrorsTotal.WithLabelValues("tunnel_active").Inc()
		return s.write(ErrorFrame)
	}
	host, port, err := httpx.ConnectTarget(target)
	if err == nil {
		var c net.Conn
		if c, err = s.eng.Tunnels.Open(ctx, host, port); err == nil {
			return s.attach(ctx, c, target)
		}
	}
	obs.Error("tunnel.open", s.fields(obs.Fields{"target": target, "err": err.Error()}))
	s.closeWith(websocket.CloseInternalServerErr, "Internal server error")
	return fmt.Errorf("open tunnel: %w", err)
}

func (s *Session) attach(ctx context.Context, c net.Conn, target string) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		_ = c.Close()
		return errSessionClosed
	}
	s.tunnel = c
	s.tunnelStart = time.Now()
	s.mu.Unlock()

	if err := s.write(TunnelAck); err != nil {
		return err
	}
	obs.Info("tunnel.established", s.fields(obs.Fields{"target": target}))
	s.spawn(func() error {
		err := s.eng.Tunnels.Pump(c, s.write)
		s.detach()
		if ctx.Err() != nil || errors.Is(err, errSessionClosed) {
			return nil
		}
		if err != nil {
			obs.Error("tunnel.read", s.fields(obs.Fields{"target": target, "err": err.Error()}))
			s.closeWith(websocket.CloseInternalServerErr, "Internal server error")
			return err
		}
		s.closeWith(websocket.CloseNormalClosure, "Tunnel closed")
		return errTunnelClosed
	})
	return nil
}

func (s *Session) forward(raw []byte) error {
	s.mu.Lock()
	c := s.tunnel
	s.mu.Unlock()
	if c == nil {
		// detached by the pump, which closes the stream itself
		return nil
	}
	_ = c.SetWriteDeadline(time.Now().Add(s.eng.writeTimeout()))
	if _, err := c.Write(raw); err != nil {
		if errors.Is(err, net.ErrClosed) {
			obs.Debug("tunnel.write.closed", s.fields(nil))
			return nil
		}
		obs.Error("tunnel.write", s.fields(obs.Fields{"err": err.Error()}))
		s.closeWith(websocket.CloseInternalServerErr, "Internal server error")
		return fmt.Errorf("tunnel write: %w", err)
	}
	return nil
}

func (s *Session) hasTunnel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnel != nil
}

// detach closes and forgets the attached tunnel, if any.
func (s *Session) detach() {
	s.mu.Lock()
	c, start := s.tunnel, s.tunnelStart
	s.tunnel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.Close()
	obs.TunnelDurationSeconds.Observe(time.Since(start).Seconds())
	obs.Debug("tunnel.closed", s.fields(nil))
}

func (s *Session) pingLoop(ctx context.Context) {
	if s.eng.PingInterval <= 0 {
		return
	}
	t := time.NewTicker(s.eng.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.isClosed() {
				return
			}
			if err := s.stream.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.eng.writeTimeout())); err != nil {
				obs.Debug("session.ping.failed", s.fields(obs.Fields{"err": err.Error()}))
				return
			}
		}
	}
}

// write sends one binary message unless the session is already closing.
func (s *Session) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if err := s.stream.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("stream write: %w", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.closed
}

// closeWith sends a close frame with code and reason once and cancels the session.
func (s *Session) closeWith(code int, reason string) {
	s.writeMu.Lock()
	if !s.closed {
		s.closed = true
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.stream.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.eng.writeTimeout()))
	}
	s.writeMu.Unlock()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}

// shutdown releases the stream and the tunnel. Safe to call more than once.
func (s *Session) shutdown() {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	s.mu.Lock()
	s.state = Closed
	s.pending = nil
	s.mu.Unlock()
	s.detach()
	_ = s.stream.Close()
}

func (s *Session) remoteIP() string {
	if h, _, err := net.SplitHostPort(s.remote); err == nil {
		return h
	}
	return s.remote
}
