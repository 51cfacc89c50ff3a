package eventsocket

import (
	"context"
	"sort"
	"strings"

	"github.com/switchkit/eventsocket/wire"
)

// SubscribeEvents unions the given names into the connection's event
// subscription and, when anything new was added, re-issues the full
// "event plain …" command. Subscriptions are monotonic: FreeSWITCH
// replaces the whole set on every event command, so the library never
// emits a subtracting one.
func (c *Connection) SubscribeEvents(ctx context.Context, names ...wire.EventName) error {
	return c.updateSubscriptions(ctx, func() bool {
		added := false
		for _, n := range names {
			if _, ok := c.events[n]; !ok {
				c.events[n] = struct{}{}
				added = true
			}
		}
		return added
	})
}

// SubscribeCustomEvents unions the given CUSTOM subclasses into the
// subscription, re-issuing the event command only when something new was
// added.
func (c *Connection) SubscribeCustomEvents(ctx context.Context, subclasses ...string) error {
	return c.updateSubscriptions(ctx, func() bool {
		added := false
		for _, s := range subclasses {
			if _, ok := c.customEvents[s]; !ok {
				c.customEvents[s] = struct{}{}
				added = true
			}
		}
		return added
	})
}

// updateSubscriptions runs the whole check-union-compose-send sequence
// under the command gate. The gate is the mechanism that orders writes on
// the wire, so a later caller's (necessarily superset) event command can
// never overtake an earlier one's — FreeSWITCH replaces the whole set on
// each command, and the server-side set must only ever grow.
func (c *Connection) updateSubscriptions(ctx context.Context, union func() bool) error {
	if err := c.acquireGate(ctx); err != nil {
		return err
	}
	defer c.releaseGate()

	c.subMu.Lock()
	added := union()
	command := c.eventCommandLocked()
	c.subMu.Unlock()

	if !added {
		return nil
	}

	m, err := c.transactLocked(ctx, command, wire.ContentTypeCommandReply)
	if err != nil {
		return err
	}
	if reply := wire.NewCommandReply(m); !reply.Success() {
		return &CommandError{Command: command, Message: reply.ErrorMessage()}
	}
	return nil
}

// SubscribedEvents returns the current event subscription set, sorted by
// wire name.
func (c *Connection) SubscribedEvents() []wire.EventName {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	names := make([]wire.EventName, 0, len(c.events))
	for n := range c.events {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Wire() < names[j].Wire() })
	return names
}

// eventCommandLocked composes "event plain <NAMES> [CUSTOM <subclasses>]"
// from the full subscription state. Callers hold subMu.
func (c *Connection) eventCommandLocked() string {
	names := make([]string, 0, len(c.events))
	for n := range c.events {
		names = append(names, n.Wire())
	}
	sort.Strings(names)

	subclasses := make([]string, 0, len(c.customEvents))
	for s := range c.customEvents {
		subclasses = append(subclasses, s)
	}
	sort.Strings(subclasses)

	var b strings.Builder
	b.WriteString("event plain")
	for _, n := range names {
		b.WriteByte(' ')
		b.WriteString(n)
	}
	if len(subclasses) > 0 {
		b.WriteString(" CUSTOM")
		for _, s := range subclasses {
			b.WriteByte(' ')
			b.WriteString(s)
		}
	}
	return b.String()
}
