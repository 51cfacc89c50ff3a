// Package eventsocket is a client library for the FreeSWITCH Event Socket
// Layer: a line-oriented TCP protocol used to run API commands, execute
// dialplan applications on calls, and receive the switch's real-time event
// stream. It supports inbound connections (Dial) and outbound ones
// (Listener), both surfacing the same Connection API.
package eventsocket

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/switchkit/eventsocket/netext"
	"github.com/switchkit/eventsocket/stream"
	"github.com/switchkit/eventsocket/wire"
)

// Connection is an established ESL connection. All methods are safe for
// concurrent use; commands are serialized on a single-slot gate so at most
// one is in flight at any instant.
type Connection struct {
	logger logrus.FieldLogger
	opts   Options

	sock     *netext.Socket
	messages *stream.Stream

	// gate admits one command transaction at a time, in FIFO-ish
	// acquisition order. It is held for the whole request/reply window.
	gate chan struct{}

	// done closes when the connection has fully terminated.
	done chan struct{}

	startOnce sync.Once

	subMu        sync.Mutex
	events       map[wire.EventName]struct{}
	customEvents map[string]struct{}
}

// NewConnection wraps an established net.Conn (for example one accepted by
// an outbound listener) and starts its reader. Inbound callers normally use
// Dial instead, which also performs the auth handshake.
func NewConnection(conn net.Conn, logger logrus.FieldLogger, opts Options) *Connection {
	c := newConnection(conn, logger, opts)
	c.start()
	return c
}

func newConnection(conn net.Conn, logger logrus.FieldLogger, opts Options) *Connection {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("address", conn.RemoteAddr().String())
	opts = NewOptions().Apply(opts)

	return &Connection{
		logger:       logger,
		opts:         opts,
		sock:         netext.NewSocket(conn, logger, opts.readBufferSize()),
		messages:     stream.New(logger),
		gate:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		events:       make(map[wire.EventName]struct{}),
		customEvents: make(map[string]struct{}),
	}
}

// start launches the reader. Handshake code subscribes to the message
// stream first so the peer's greeting cannot slip past it.
func (c *Connection) start() {
	c.startOnce.Do(func() { go c.run() })
}

// run is the connection's only reader: it frames the chunk stream into
// messages and fans them out, then tears everything down on completion.
func (c *Connection) run() {
	var terminal error

	dec := wire.NewDecoder()
loop:
	for chunk := range c.sock.Receive() {
		msgs, err := dec.Write(chunk)
		for _, m := range msgs {
			c.messages.Publish(m)
			if m.ContentType() == wire.ContentTypeDisconnectNotice {
				c.logger.Debug("peer sent disconnect notice")
				break loop
			}
		}
		if err != nil {
			terminal = fmt.Errorf("message receiver: %w", err)
			c.logger.WithError(err).Error("fatal framing error")
			break
		}
	}
	if terminal == nil {
		terminal = c.sock.Err()
	}

	_ = c.sock.Close()
	c.messages.CloseWith(terminal)
	close(c.done)
}

// Close disposes the connection. Pending transactions fail with
// ErrCancelled; the message stream completes. Safe to call repeatedly.
func (c *Connection) Close() error {
	return c.sock.Close()
}

// Done closes when the connection has terminated for any reason.
func (c *Connection) Done() <-chan struct{} { return c.done }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr { return c.sock.RemoteAddr() }

// Messages subscribes to every framed message from now on. The stream is
// hot: there is no replay. Drain C() until it closes, or Close() the
// subscription.
func (c *Connection) Messages() *stream.Subscription {
	return c.messages.Subscribe()
}

// EventSubscription is a live cursor over the connection's event stream.
type EventSubscription struct {
	ch        chan *wire.Event
	sub       *stream.Subscription
	logger    logrus.FieldLogger
	closeOnce sync.Once
	cancelled chan struct{}
}

// C is the subscriber's event channel; it closes when the connection
// terminates or the subscription is closed.
func (s *EventSubscription) C() <-chan *wire.Event { return s.ch }

// Close unsubscribes.
func (s *EventSubscription) Close() {
	s.closeOnce.Do(func() { close(s.cancelled) })
	s.sub.Close()
}

func (c *Connection) eventSubscription(filter func(*wire.Event) bool) *EventSubscription {
	s := &EventSubscription{
		ch:        make(chan *wire.Event),
		sub:       c.messages.Subscribe(),
		logger:    c.logger,
		cancelled: make(chan struct{}),
	}
	go func() {
		defer close(s.ch)
		for m := range s.sub.C() {
			if !wire.IsEventMessage(m) {
				continue
			}
			ev, err := wire.NewEvent(m)
			if err != nil {
				s.logger.WithError(err).Warn("dropping unparsable event")
				continue
			}
			if filter != nil && !filter(ev) {
				continue
			}
			select {
			case s.ch <- ev:
			case <-s.cancelled:
				return
			}
		}
	}()
	return s
}

// Events subscribes to all events on the connection, in arrival order.
func (c *Connection) Events() *EventSubscription {
	return c.eventSubscription(nil)
}

// ChannelEvents subscribes to events that carry a channel UUID.
func (c *Connection) ChannelEvents() *EventSubscription {
	return c.eventSubscription(func(ev *wire.Event) bool {
		return ev.ChannelUUID() != ""
	})
}

// eventWaiter resolves with the first event matching its predicate, or nil
// when the connection terminates first.
type eventWaiter struct {
	ch  chan *wire.Event
	sub *stream.Subscription
}

func (w *eventWaiter) cancel() { w.sub.Close() }

// firstEvent arms a waiter for the first matching event. Arm waiters
// before writing the command that provokes the event, so a fast peer
// cannot win the race.
func (c *Connection) firstEvent(pred func(*wire.Event) bool) *eventWaiter {
	w := &eventWaiter{
		ch:  make(chan *wire.Event, 1),
		sub: c.messages.Subscribe(),
	}
	go func() {
		defer close(w.ch)
		for m := range w.sub.C() {
			if !wire.IsEventMessage(m) {
				continue
			}
			ev, err := wire.NewEvent(m)
			if err != nil {
				continue
			}
			if pred(ev) {
				w.ch <- ev
				w.sub.Close()
				return
			}
		}
	}()
	return w
}

// OnHangup invokes fn with the first CHANNEL_HANGUP event for the given
// channel UUID, at most once. The returned cancel releases the hook early.
func (c *Connection) OnHangup(channelUUID string, fn func(*wire.Event)) (cancel func()) {
	w := c.firstEvent(func(ev *wire.Event) bool {
		return ev.Name() == wire.EventChannelHangup && ev.ChannelUUID() == channelUUID
	})
	go func() {
		if ev, ok := <-w.ch; ok && ev != nil {
			fn(ev)
		}
	}()
	return w.cancel
}
