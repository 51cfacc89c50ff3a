package eventsocket

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchkit/eventsocket/types"
)

// fakeSwitch accepts one inbound connection and hands it to the script.
type fakeSwitch struct {
	t  *testing.T
	ln net.Listener
}

func newFakeSwitch(t *testing.T, handler func(s *script)) *fakeSwitch {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handler(&script{t: t, conn: conn, rd: bufio.NewReader(conn)})
	}()
	return &fakeSwitch{t: t, ln: ln}
}

func (f *fakeSwitch) addr() string { return f.ln.Addr().String() }

func TestDialAuthOK(t *testing.T) {
	t.Parallel()
	fs := newFakeSwitch(t, func(s *script) {
		s.send("Content-Type: auth/request\n\n")
		s.expect("auth ClueCon\n\n")
		s.sendReply("+OK accepted")
		// Stay alive until the client walks away.
		_, _ = s.rd.ReadString('\n')
	})

	conn, err := Dial(context.Background(), fs.addr(), "ClueCon", testLogger(), Options{})
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-conn.Done():
		t.Fatal("fresh connection already terminated")
	default:
	}
}

func TestDialInvalidPassword(t *testing.T) {
	t.Parallel()
	fs := newFakeSwitch(t, func(s *script) {
		s.send("Content-Type: auth/request\n\n")
		s.expect("auth wrong\n\n")
		s.sendReply("-ERR Invalid Password")
	})

	_, err := Dial(context.Background(), fs.addr(), "wrong", testLogger(), Options{})
	var ierr *InboundError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InboundFailureInvalidPassword, ierr.Reason)
	assert.Equal(t, "Invalid Password", ierr.Message)
	assert.Equal(t, fs.addr(), ierr.Endpoint)
}

func TestDialAuthRequestTimeout(t *testing.T) {
	t.Parallel()
	fs := newFakeSwitch(t, func(s *script) {
		// Accept and say nothing.
		time.Sleep(time.Second)
		_ = s.conn.Close()
	})

	start := time.Now()
	_, err := Dial(context.Background(), fs.addr(), "ClueCon", testLogger(), Options{
		ResponseTimeout: types.NullDurationFrom(100 * time.Millisecond),
	})
	var ierr *InboundError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InboundFailureTimeout, ierr.Reason)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDialConnectionRefused(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, "ClueCon", testLogger(), Options{})
	var ierr *InboundError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InboundFailureTransport, ierr.Reason)
}

func TestDialPeerDropsDuringHandshake(t *testing.T) {
	t.Parallel()
	fs := newFakeSwitch(t, func(s *script) {
		s.send("Content-Type: auth/request\n\n")
		s.expect("auth ClueCon\n\n")
		_ = s.conn.Close()
	})

	_, err := Dial(context.Background(), fs.addr(), "ClueCon", testLogger(), Options{})
	var ierr *InboundError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InboundFailureTransport, ierr.Reason)
}

func TestDialThenUseOverTCP(t *testing.T) {
	t.Parallel()
	fs := newFakeSwitch(t, func(s *script) {
		s.send("Content-Type: auth/request\n\n")
		s.expect("auth ClueCon\n\n")
		s.sendReply("+OK accepted")
		s.expect("api status\n\n")
		// A CRLF-flavoured response must be normalized away.
		s.send("Content-Type: api/response\r\nContent-Length: 3\r\n\r\n+OK")
		s.expect("exit\n\n")
		s.sendReply("+OK bye")
		s.send("Content-Type: text/disconnect-notice\n\n")
	})

	ctx := context.Background()
	conn, err := Dial(ctx, fs.addr(), "ClueCon", testLogger(), Options{})
	require.NoError(t, err)

	res, err := conn.SendAPI(ctx, "status")
	require.NoError(t, err)
	assert.True(t, res.Success())

	require.NoError(t, conn.Exit(ctx))
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection did not wind down after exit")
	}
}

func TestInboundErrorMessage(t *testing.T) {
	t.Parallel()
	err := &InboundError{
		Reason:   InboundFailureInvalidPassword,
		Endpoint: "10.0.0.5:8021",
		Message:  "Invalid Password",
	}
	assert.True(t, strings.Contains(err.Error(), "10.0.0.5:8021"))
	assert.True(t, strings.Contains(err.Error(), "invalid password"))
}
