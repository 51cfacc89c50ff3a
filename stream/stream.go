// Package stream provides the hot, multi-subscriber message stream the
// connection fans framed messages out on. There is no replay: a subscriber
// sees only messages published after it subscribed, in publish order, and
// a one-shot terminal signal (completion or error) when the stream ends.
package stream

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/switchkit/eventsocket/wire"
)

// Stream broadcasts framed messages to any number of subscribers. Each
// subscription is an independent cursor: messages are queued per subscriber
// so a slow consumer never reorders or drops anything, and never stalls
// the publisher or its peers.
type Stream struct {
	logger logrus.FieldLogger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	err    error
}

// New returns an open stream.
func New(logger logrus.FieldLogger) *Stream {
	return &Stream{
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new cursor over future messages. On an already
// terminated stream the subscription's channel closes immediately with the
// stream's terminal error.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{
		out:       make(chan *wire.Message),
		cancelled: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	s.mu.Lock()
	s.nextID++
	sub.id = s.nextID
	sub.stream = s
	if s.closed {
		sub.closed = true
		sub.err = s.err
	} else {
		s.subs[sub.id] = sub
	}
	s.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish delivers a message to every current subscriber in order.
func (s *Stream) Publish(m *wire.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, sub := range s.subs {
		sub.push(m)
	}
	s.mu.Unlock()
}

// CloseWith terminates the stream, delivering err (nil for normal
// completion) to every subscriber after their queued messages drain. Only
// the first call has any effect.
func (s *Stream) CloseWith(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Debug("message stream terminated")
	}
	for _, sub := range subs {
		sub.finish(err)
	}
}

func (s *Stream) drop(id uint64) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Subscription is one cursor over the stream. Receive from C until it
// closes, then consult Err for the terminal signal.
type Subscription struct {
	stream    *Stream
	id        uint64
	out       chan *wire.Message
	cancelled chan struct{}

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []*wire.Message
	closed       bool
	cancelClosed bool
	err          error
}

// C is the subscriber's message channel. It closes when the stream
// terminates or the subscription is closed.
func (sub *Subscription) C() <-chan *wire.Message { return sub.out }

// Err returns the stream's terminal error. It is meaningful only after C
// has closed; nil means normal completion or local unsubscribe.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close unsubscribes. Queued but unreceived messages are discarded; C
// closes once the pump observes the cancellation. Close is also the escape
// hatch for consumers that stop receiving from C before it closes.
func (sub *Subscription) Close() {
	if sub.stream != nil {
		sub.stream.drop(sub.id)
	}
	sub.mu.Lock()
	sub.closed = true
	sub.queue = nil
	if !sub.cancelClosed {
		sub.cancelClosed = true
		close(sub.cancelled)
	}
	sub.cond.Signal()
	sub.mu.Unlock()
}

func (sub *Subscription) push(m *wire.Message) {
	sub.mu.Lock()
	if !sub.closed {
		sub.queue = append(sub.queue, m)
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *Subscription) finish(err error) {
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		sub.err = err
	}
	sub.cond.Signal()
	sub.mu.Unlock()
}

// pump moves queued messages onto the subscriber channel, preserving
// order, and closes the channel when the subscription terminates.
func (sub *Subscription) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 && sub.closed {
			sub.mu.Unlock()
			return
		}
		m := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- m:
		case <-sub.cancelled:
			return
		}
	}
}
