package eventsocket

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/switchkit/eventsocket/stream"
	"github.com/switchkit/eventsocket/wire"
)

// Dial opens an inbound ESL connection: dial TCP, wait for the
// auth/request greeting, authenticate. Handshake failures come back as
// *InboundError with the cause preserved.
func Dial(ctx context.Context, addr, password string, logger logrus.FieldLogger, opts Options) (*Connection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &InboundError{Reason: InboundFailureTransport, Endpoint: addr, Err: err}
	}

	c := newConnection(conn, logger, opts)
	if err := c.authenticate(ctx, password); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Debug("inbound connection authenticated")
	return c, nil
}

func (c *Connection) authenticate(ctx context.Context, password string) error {
	addr := c.sock.RemoteAddr().String()

	// Subscribe before the reader starts: the greeting is on the wire
	// already and the stream does not replay.
	sub := c.messages.Subscribe()
	defer sub.Close()
	c.start()

	if err := c.awaitAuthRequest(ctx, sub, addr); err != nil {
		return err
	}

	reply, err := c.SendCommand(ctx, "auth "+password)
	if err != nil {
		return &InboundError{Reason: InboundFailureTransport, Endpoint: addr, Err: err}
	}
	if !reply.Success() {
		return &InboundError{
			Reason:   InboundFailureInvalidPassword,
			Endpoint: addr,
			Message:  reply.ErrorMessage(),
		}
	}
	return nil
}

// awaitAuthRequest waits for the auth/request greeting FreeSWITCH sends on
// accept. The wait is bounded by the response timeout.
func (c *Connection) awaitAuthRequest(ctx context.Context, sub *stream.Subscription, addr string) error {
	timer := time.NewTimer(c.opts.responseTimeout())
	defer timer.Stop()

	for {
		select {
		case m, ok := <-sub.C():
			if !ok {
				return &InboundError{Reason: InboundFailureTransport, Endpoint: addr, Err: ErrCancelled}
			}
			if m.ContentType() == wire.ContentTypeAuthRequest {
				return nil
			}
		case <-timer.C:
			return &InboundError{Reason: InboundFailureTimeout, Endpoint: addr, Err: ErrTimeout}
		case <-ctx.Done():
			return &InboundError{Reason: InboundFailureTransport, Endpoint: addr, Err: ctx.Err()}
		}
	}
}
