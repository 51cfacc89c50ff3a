package eventsocket

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchkit/eventsocket/wire"
)

func TestSubscribeEventsGrowsMonotonically(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SubscribeEvents(ctx, wire.EventHeartbeat) }()
	s.expect("event plain HEARTBEAT\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)

	// Adding a name re-issues the whole set.
	go func() { done <- c.SubscribeEvents(ctx, wire.EventBackgroundJob) }()
	s.expect("event plain BACKGROUND_JOB HEARTBEAT\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)

	assert.Equal(t,
		[]wire.EventName{wire.EventBackgroundJob, wire.EventHeartbeat},
		c.SubscribedEvents())
}

func TestSubscribeEventsIdempotent(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SubscribeEvents(ctx, wire.EventHeartbeat) }()
	s.expect("event plain HEARTBEAT\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)

	// Re-subscribing the same set issues nothing: the call returns
	// without the scripted peer reading a command.
	require.NoError(t, c.SubscribeEvents(ctx, wire.EventHeartbeat))

	// The wire stays command-free: the next transaction is the very next
	// thing the peer sees.
	go func() { done <- c.SubscribeEvents(ctx, wire.EventHeartbeat, wire.EventShutdown) }()
	s.expect("event plain HEARTBEAT SHUTDOWN\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)
}

func TestConcurrentSubscribesNeverShrinkWireSet(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})
	ctx := context.Background()

	// Two goroutines race to subscribe different names. The whole
	// union-compose-send sequence holds the command gate, so whichever
	// caller writes second must write a superset of the first command's
	// set — FreeSWITCH replaces the full set on every event command, and
	// a shrinking second command would silently drop the first caller's
	// subscription.
	done := make(chan error, 2)
	go func() { done <- c.SubscribeEvents(ctx, wire.EventHeartbeat) }()
	go func() { done <- c.SubscribeEvents(ctx, wire.EventBackgroundJob) }()

	first := s.expect("event plain ")
	// The reply is withheld until the second caller is already blocked on
	// the gate; it must not have snapshotted (or written) anything yet.
	s.sendReply("+OK")
	second := s.expect("event plain ")
	s.sendReply("+OK")

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	parse := func(cmd string) map[string]struct{} {
		names := strings.Fields(strings.TrimSpace(strings.TrimPrefix(cmd, "event plain")))
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		return set
	}
	firstSet, secondSet := parse(first), parse(second)
	require.Len(t, firstSet, 1)
	require.Len(t, secondSet, 2)
	for n := range firstSet {
		assert.Contains(t, secondSet, n)
	}
	assert.Equal(t,
		[]wire.EventName{wire.EventBackgroundJob, wire.EventHeartbeat},
		c.SubscribedEvents())
}

func TestSubscribeCustomEvents(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SubscribeEvents(ctx, wire.EventHeartbeat) }()
	s.expect("event plain HEARTBEAT\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)

	go func() { done <- c.SubscribeCustomEvents(ctx, "sofia::register", "conference::maintenance") }()
	s.expect("event plain HEARTBEAT CUSTOM conference::maintenance sofia::register\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)

	// Same subclasses again: no wire traffic.
	require.NoError(t, c.SubscribeCustomEvents(ctx, "sofia::register"))
}

func TestSubscribeCustomEventsOnly(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})

	done := make(chan error, 1)
	go func() { done <- c.SubscribeCustomEvents(context.Background(), "mycompany::billing") }()
	s.expect("event plain CUSTOM mycompany::billing\n\n")
	s.sendReply("+OK")
	require.NoError(t, <-done)
}

func TestSubscribeEventsServerError(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})

	done := make(chan error, 1)
	go func() { done <- c.SubscribeEvents(context.Background(), wire.EventHeartbeat) }()
	s.expect("event plain HEARTBEAT\n\n")
	s.sendReply("-ERR parsing event spec")

	err := <-done
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "parsing event spec", cerr.Message)
}

func TestFilter(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Filter(ctx, "Unique-ID", channelUUID) }()
	s.expect("filter Unique-ID " + channelUUID + "\n\n")
	s.sendReply("+OK filter added")
	require.NoError(t, <-done)

	go func() { done <- c.FilterDelete(ctx, "Unique-ID", channelUUID) }()
	s.expect("filter delete Unique-ID " + channelUUID + "\n\n")
	s.sendReply("+OK filter deleted")
	require.NoError(t, <-done)
}

func TestSendEvent(t *testing.T) {
	t.Parallel()
	c, s := newTestConnection(t, Options{})

	done := make(chan error, 1)
	go func() {
		done <- c.SendEvent(context.Background(), "SEND_MESSAGE",
			map[string]string{"profile": "internal"}, "hello")
	}()
	got := s.expect("sendevent SEND_MESSAGE\n")
	assert.Contains(t, got, "profile: internal\n")
	assert.Contains(t, got, "content-length: 5\n\nhello")
	s.sendReply("+OK")
	require.NoError(t, <-done)
}
