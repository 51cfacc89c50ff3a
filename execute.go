package eventsocket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/switchkit/eventsocket/wire"
)

// ExecuteRequest describes one dialplan application invocation on a
// channel.
type ExecuteRequest struct {
	ChannelUUID string
	Application string
	Args        string

	// EventLock makes FreeSWITCH queue the application behind the ones
	// already executing on the channel.
	EventLock bool

	// Async asks FreeSWITCH not to block the channel's session thread.
	Async bool

	// Loops repeats the application; values below 2 are omitted from the
	// wire message.
	Loops int
}

// Execute runs a dialplan application on a channel and waits for its
// CHANNEL_EXECUTE_COMPLETE, correlated by a per-invocation generated
// Application-UUID so concurrent executions on the same channel resolve
// independently.
//
// A nil event with a nil error means the operation resolved without a
// completion: FreeSWITCH refused the sendmsg, or the connection went away
// while waiting.
func (c *Connection) Execute(ctx context.Context, channelUUID, application, args string) (*wire.Event, error) {
	return c.ExecuteWith(ctx, ExecuteRequest{
		ChannelUUID: channelUUID,
		Application: application,
		Args:        args,
	})
}

// ExecuteWith is Execute with full control over the sendmsg options.
func (c *Connection) ExecuteWith(ctx context.Context, req ExecuteRequest) (*wire.Event, error) {
	if err := c.SubscribeEvents(ctx, wire.EventChannelExecuteComplete); err != nil {
		return nil, err
	}

	appUUID, err := newUUID()
	if err != nil {
		return nil, err
	}

	// The observer must be armed before the command is written.
	w := c.firstEvent(executeCompleteFor(appUUID))
	defer w.cancel()

	ok, err := c.sendExecute(ctx, req, appUUID)
	if err != nil || !ok {
		return nil, err
	}

	select {
	case ev := <-w.ch:
		return ev, nil // nil when the connection terminated first
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bridge bridges the given A-leg to an endpoint. A successful bridge holds
// its CHANNEL_EXECUTE_COMPLETE back until the B-leg hangs up, so the
// operation instead resolves with whichever comes first of the A-leg's
// CHANNEL_BRIDGE (success) or CHANNEL_HANGUP (failure); the returned
// event's name and headers tell the two apart. The execute-complete
// observer still runs so an immediate bridge failure resolves promptly.
func (c *Connection) Bridge(ctx context.Context, channelUUID, endpoint string) (*wire.Event, error) {
	err := c.SubscribeEvents(ctx,
		wire.EventChannelExecuteComplete, wire.EventChannelBridge, wire.EventChannelHangup)
	if err != nil {
		return nil, err
	}

	appUUID, err := newUUID()
	if err != nil {
		return nil, err
	}

	// Both terminal observers are armed before the bridge is written.
	complete := c.firstEvent(executeCompleteFor(appUUID))
	defer complete.cancel()
	progress := c.firstEvent(func(ev *wire.Event) bool {
		name := ev.Name()
		return (name == wire.EventChannelBridge || name == wire.EventChannelHangup) &&
			ev.ChannelUUID() == channelUUID
	})
	defer progress.cancel()

	req := ExecuteRequest{ChannelUUID: channelUUID, Application: "bridge", Args: endpoint}
	ok, err := c.sendExecute(ctx, req, appUUID)
	if err != nil || !ok {
		return nil, err
	}

	select {
	case ev := <-complete.ch:
		return ev, nil
	case ev := <-progress.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sendExecute writes the sendmsg and reports whether FreeSWITCH accepted
// it. A -ERR reply resolves the operation as a failure without error: no
// execute-complete will ever arrive for it.
func (c *Connection) sendExecute(ctx context.Context, req ExecuteRequest, appUUID string) (bool, error) {
	reply, err := c.SendCommand(ctx, buildSendMsg(req, appUUID))
	if err != nil {
		return false, err
	}
	if !reply.Success() {
		c.logger.WithField("application", req.Application).
			WithField("uuid", req.ChannelUUID).
			Debugf("sendmsg refused: %s", reply.ErrorMessage())
		return false, nil
	}
	return true, nil
}

func executeCompleteFor(appUUID string) func(*wire.Event) bool {
	return func(ev *wire.Event) bool {
		return ev.Name() == wire.EventChannelExecuteComplete &&
			ev.Header(wire.HeaderApplicationUUID) == appUUID
	}
}

// buildSendMsg composes the sendmsg payload (without the trailing blank
// line, which the command pipeline appends). Non-empty args travel as a
// text/plain body with its own content framing inside the message.
//
// The isAsync spelling is the one deployed switches accept for this
// client lineage; newer FreeSWITCH also understands "async".
func buildSendMsg(req ExecuteRequest, appUUID string) string {
	var b strings.Builder
	b.WriteString("sendmsg ")
	b.WriteString(req.ChannelUUID)
	b.WriteString("\nEvent-UUID: ")
	b.WriteString(appUUID)
	b.WriteString("\ncall-command: execute")
	b.WriteString("\nexecute-app-name: ")
	b.WriteString(req.Application)
	if req.EventLock {
		b.WriteString("\nevent-lock: true")
	}
	if req.Loops > 1 {
		b.WriteString("\nloops: ")
		b.WriteString(strconv.Itoa(req.Loops))
	}
	if req.Async {
		b.WriteString("\nisAsync: true")
	}
	if req.Args != "" {
		b.WriteString("\ncontent-type: text/plain\ncontent-length: ")
		b.WriteString(strconv.Itoa(len(req.Args)))
		b.WriteString("\n\n")
		b.WriteString(req.Args)
	}
	return b.String()
}

func newUUID() (string, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generating uuid: %w", err)
	}
	return u.String(), nil
}
