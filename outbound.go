package eventsocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/switchkit/eventsocket/wire"
)

// Listener accepts outbound ESL connections: FreeSWITCH dials us once per
// call, with the socket already bound to a channel.
type Listener struct {
	logger logrus.FieldLogger
	opts   Options
	addr   string

	mu       sync.Mutex
	ln       net.Listener
	started  bool
	stopped  bool
	disposed bool
	sessions []*Session
	loopDone chan struct{}

	conns    chan *Session
	channels chan *Session

	// acceptLimiter throttles the accept loop after errors so a broken
	// listener cannot spin.
	acceptLimiter *rate.Limiter
}

// NewListener returns an unstarted listener for the given address
// (":0" or "host:0" binds an ephemeral port).
func NewListener(addr string, logger logrus.FieldLogger, opts Options) *Listener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts = NewOptions().Apply(opts)
	return &Listener{
		logger:        logger.WithField("listener", addr),
		opts:          opts,
		addr:          addr,
		conns:         make(chan *Session, opts.acceptBacklog()),
		channels:      make(chan *Session, opts.acceptBacklog()),
		acceptLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// Start binds and begins accepting. It is idempotent while running, and
// restartable after Stop (the port may change when it was ephemeral).
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return ErrDisposed
	}
	if l.started && !l.stopped {
		return nil
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	l.ln = ln
	l.started = true
	l.stopped = false
	l.logger = l.logger.WithField("listener", ln.Addr().String())
	l.logger.Debug("listener started")

	l.loopDone = make(chan struct{})
	go l.acceptLoop(ln, l.loopDone)
	return nil
}

// Stop stops accepting new connections. Sessions already produced stay
// alive.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked()
}

func (l *Listener) stopLocked() error {
	if !l.started || l.stopped {
		return nil
	}
	l.stopped = true
	err := l.ln.Close()
	done := l.loopDone
	l.mu.Unlock()
	<-done
	l.mu.Lock()
	return err
}

// Dispose stops the listener and tears down every session it ever
// produced. The Connections and Channels streams complete; sessions still
// buffered on them are discarded, since they are being torn down too.
func (l *Listener) Dispose() error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil
	}
	err := l.stopLocked()
	l.disposed = true
	sessions := l.sessions
	l.sessions = nil
	for _, ch := range []chan *Session{l.conns, l.channels} {
	drain:
		for {
			select {
			case <-ch:
			default:
				break drain
			}
		}
	}
	close(l.conns)
	close(l.channels)
	l.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return err
}

// IsStarted reports started ∧ ¬stopped ∧ ¬disposed.
func (l *Listener) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started && !l.stopped && !l.disposed
}

// Addr returns the bound address, or nil before the first Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Port returns the bound TCP port, or 0 before the first Start.
func (l *Listener) Port() int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Connections is the hot stream of accepted sessions. The caller is
// expected to run Connect on each to receive its channel data.
func (l *Listener) Connections() <-chan *Session { return l.conns }

// Channels is the hot stream of sessions whose Connect completed: their
// channel data has arrived. Sessions that disconnect first never appear.
func (l *Listener) Channels() <-chan *Session { return l.channels }

func (l *Listener) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// A single bad accept must not take the listener down.
			l.logger.WithError(err).Warn("accept failed")
			_ = l.acceptLimiter.Wait(context.Background())
			continue
		}
		l.handleAccepted(conn)
	}
}

func (l *Listener) handleAccepted(conn net.Conn) {
	s := &Session{Connection: NewConnection(conn, l.logger, l.opts)}
	s.onChannelData = func() { l.offerChannel(s) }

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		_ = s.Close()
		return
	}
	l.sessions = append(l.sessions, s)
	dropped := false
	select {
	case l.conns <- s:
	default:
		dropped = true
	}
	l.mu.Unlock()

	if dropped {
		l.logger.Warn("connection backlog full, dropping session")
		_ = s.Close()
	}
}

func (l *Listener) offerChannel(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	select {
	case l.channels <- s:
	default:
		l.logger.Warn("channel backlog full, not publishing session")
	}
}

// Session is one outbound connection, bound to a single call.
type Session struct {
	*Connection

	onChannelData func()

	cdMu        sync.Mutex
	channelData *wire.Event
}

// Connect performs the outbound handshake: send "connect", wait for the
// channel data. FreeSWITCH versions differ on the delivery shape (a
// command/reply with the state in its headers, or an event), so any framed
// message whose headers carry Channel-Call-UUID satisfies the wait. If the
// peer disconnects first, Connect fails with ErrCancelled.
func (s *Session) Connect(ctx context.Context) (*wire.Event, error) {
	if err := s.acquireGate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseGate()

	sub := s.messages.Subscribe()
	defer sub.Close()

	if err := s.sock.Send([]byte("connect\n\n")); err != nil {
		return nil, fmt.Errorf("writing connect: %w", err)
	}

	timer := time.NewTimer(s.opts.responseTimeout())
	defer timer.Stop()

	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return nil, ErrCancelled
			}
			ev := channelDataFrom(m)
			if ev == nil {
				continue
			}
			s.cdMu.Lock()
			s.channelData = ev
			s.cdMu.Unlock()
			if s.onChannelData != nil {
				s.onChannelData()
			}
			return ev, nil
		case <-timer.C:
			return nil, fmt.Errorf("connect: %w", ErrTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// channelDataFrom recognizes a channel-data frame in either delivery
// shape: a command/reply with the state in its headers, or an event whose
// body carries it.
func channelDataFrom(m *wire.Message) *wire.Event {
	ev, err := wire.NewEvent(m)
	if err != nil {
		return nil
	}
	if !ev.HasHeader(wire.HeaderChannelCallUUID) {
		return nil
	}
	return ev
}

// ChannelData returns the channel state received by Connect, or nil before
// the handshake completed.
func (s *Session) ChannelData() *wire.Event {
	s.cdMu.Lock()
	defer s.cdMu.Unlock()
	return s.channelData
}

// ChannelUUID returns the session's call leg UUID, or "" before Connect.
func (s *Session) ChannelUUID() string {
	if cd := s.ChannelData(); cd != nil {
		if id := cd.ChannelUUID(); id != "" {
			return id
		}
		return cd.Header(wire.HeaderChannelCallUUID)
	}
	return ""
}

// Linger asks FreeSWITCH to keep the socket open after hangup so trailing
// events still arrive.
func (s *Session) Linger(ctx context.Context) error {
	return s.simpleCommand(ctx, "linger")
}

// NoLinger reverts Linger.
func (s *Session) NoLinger(ctx context.Context) error {
	return s.simpleCommand(ctx, "nolinger")
}

// MyEvents locks the event stream to the session's channel.
func (s *Session) MyEvents(ctx context.Context) error {
	if id := s.ChannelUUID(); id != "" {
		return s.simpleCommand(ctx, "myevents "+id)
	}
	return s.simpleCommand(ctx, "myevents")
}
