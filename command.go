package eventsocket

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/switchkit/eventsocket/wire"
)

// SendCommand runs a plain ESL command ("event plain …", "filter …",
// "auth …", a sendmsg payload) and returns its command/reply. A reply of
// -ERR is not an error here; inspect CommandReply.Success.
func (c *Connection) SendCommand(ctx context.Context, command string) (*wire.CommandReply, error) {
	m, err := c.transact(ctx, command, wire.ContentTypeCommandReply)
	if err != nil {
		return nil, err
	}
	return wire.NewCommandReply(m), nil
}

// SendAPI runs "api <command>" and returns its api/response.
func (c *Connection) SendAPI(ctx context.Context, command string) (*wire.APIResponse, error) {
	m, err := c.transact(ctx, "api "+command, wire.ContentTypeAPIResponse)
	if err != nil {
		return nil, err
	}
	return wire.NewAPIResponse(m), nil
}

// transact runs one command transaction end to end: acquire the gate,
// subscribe for the reply, write, await the first message of the expected
// content type, release the gate. ESL replies arrive in issue order and
// exactly once per command, so with at most one command in flight the next
// message of the right kind IS the reply.
func (c *Connection) transact(ctx context.Context, payload, replyType string) (*wire.Message, error) {
	if err := c.acquireGate(ctx); err != nil {
		return nil, err
	}
	defer c.releaseGate()

	return c.transactLocked(ctx, payload, replyType)
}

// transactLocked is the body of transact for callers that already hold the
// gate (subscription updates compose their command under it).
func (c *Connection) transactLocked(ctx context.Context, payload, replyType string) (*wire.Message, error) {
	// Arm the reply subscription before the bytes hit the wire.
	sub := c.messages.Subscribe()
	defer sub.Close()

	if err := c.sock.Send([]byte(payload + "\n\n")); err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}

	timer := time.NewTimer(c.opts.responseTimeout())
	defer timer.Stop()

	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return nil, ErrCancelled
			}
			if m.ContentType() == replyType {
				return m, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%q: %w", firstLine(payload), ErrTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Connection) acquireGate(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrDisposed
	default:
	}
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-c.done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) releaseGate() { <-c.gate }

// Exit runs the exit handshake: a command/reply followed by the peer's
// disconnect notice. A notice that never arrives within 2s still counts as
// a clean exit, as does the connection tearing down underneath us.
func (c *Connection) Exit(ctx context.Context) error {
	if err := c.acquireGate(ctx); err != nil {
		return err
	}
	defer c.releaseGate()

	sub := c.messages.Subscribe()
	defer sub.Close()

	if err := c.sock.Send([]byte("exit\n\n")); err != nil {
		return fmt.Errorf("writing exit: %w", err)
	}

	timer := time.NewTimer(c.opts.responseTimeout())
	defer timer.Stop()

	sawReply := false
	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return nil // disconnected, which is the point
			}
			switch m.ContentType() {
			case wire.ContentTypeCommandReply:
				if sawReply {
					continue
				}
				sawReply = true
				timer.Reset(disconnectNoticeTimeout)
			case wire.ContentTypeDisconnectNotice:
				return nil
			}
		case <-timer.C:
			if sawReply {
				return nil // notice never came; treat as success
			}
			return fmt.Errorf("exit: %w", ErrTimeout)
		}
	}
}

// Filter asks FreeSWITCH to restrict the event stream to events whose
// header matches the given value ("filter in" semantics). Multiple filters
// compose on the server.
func (c *Connection) Filter(ctx context.Context, header, value string) error {
	return c.simpleCommand(ctx, "filter "+header+" "+value)
}

// FilterDelete revokes a previously installed filter.
func (c *Connection) FilterDelete(ctx context.Context, header, value string) error {
	return c.simpleCommand(ctx, "filter delete "+header+" "+value)
}

// SendEvent injects an event into the FreeSWITCH event system.
func (c *Connection) SendEvent(ctx context.Context, name string, headers map[string]string, body string) error {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("sendevent ")
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
	}
	if body != "" {
		b.WriteString("\ncontent-length: ")
		b.WriteString(strconv.Itoa(len(body)))
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	return c.simpleCommand(ctx, b.String())
}

// simpleCommand sends a command and converts a -ERR reply into a
// CommandError.
func (c *Connection) simpleCommand(ctx context.Context, command string) error {
	reply, err := c.SendCommand(ctx, command)
	if err != nil {
		return err
	}
	if !reply.Success() {
		return &CommandError{Command: firstLine(command), Message: reply.ErrorMessage()}
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
