// Package netext wraps the raw TCP connection to FreeSWITCH: atomic
// command writes, a single lazily-started reader, CRLF normalization and
// idempotent teardown.
package netext

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrSocketClosed is returned by Send after the socket is disposed.
var ErrSocketClosed = errors.New("socket closed")

const defaultReadBufferSize = 4096

// Socket owns a duplex byte stream. Writes are serialized so a command is
// never interleaved with another command's bytes; reads are single-threaded
// by construction and delivered as chunks whose boundaries carry no
// meaning.
type Socket struct {
	conn    net.Conn
	logger  logrus.FieldLogger
	bufSize int

	writeMu sync.Mutex

	recvOnce sync.Once
	recv     chan []byte

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	closeErr  error
	disposed  chan struct{}
}

// NewSocket wraps an established connection. The reader does not start
// until Receive is first called.
func NewSocket(conn net.Conn, logger logrus.FieldLogger, bufSize int) *Socket {
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	return &Socket{
		conn:     conn,
		logger:   logger,
		bufSize:  bufSize,
		recv:     make(chan []byte),
		disposed: make(chan struct{}),
	}
}

// Send writes a complete command to the peer. The write is atomic with
// respect to other Send calls.
func (s *Socket) Send(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.disposed:
		return ErrSocketClosed
	default:
	}

	if _, err := s.conn.Write(p); err != nil {
		return err
	}
	return nil
}

// Receive returns the chunk stream. The first call starts the reader; the
// channel closes on EOF, read error or disposal, after which Err reports
// the terminal error, if any.
func (s *Socket) Receive() <-chan []byte {
	s.recvOnce.Do(func() {
		go s.readLoop()
	})
	return s.recv
}

// Err returns the error that terminated the read loop. It is meaningful
// only after the Receive channel has closed; a clean EOF and a local close
// both leave it nil.
func (s *Socket) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// Disposed is closed exactly once when the socket is torn down.
func (s *Socket) Disposed() <-chan struct{} { return s.disposed }

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Close tears the socket down. It is safe to call repeatedly; the reader,
// if running, observes the closed connection and finishes.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.disposed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Socket) readLoop() {
	defer close(s.recv)

	buf := make([]byte, s.bufSize)
	heldCR := false
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, 0, n)
			chunk, heldCR = normalizeCRLF(chunk, buf[:n], heldCR)
			if len(chunk) > 0 {
				select {
				case s.recv <- chunk:
				case <-s.disposed:
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isDisposed() {
				s.errMu.Lock()
				s.readErr = err
				s.errMu.Unlock()
				s.logger.WithError(err).Debug("socket read failed")
			}
			return
		}
	}
}

func (s *Socket) isDisposed() bool {
	select {
	case <-s.disposed:
		return true
	default:
		return false
	}
}

// normalizeCRLF appends src to dst rewriting CRLF pairs to LF, carrying a
// trailing CR across chunk boundaries via heldCR.
func normalizeCRLF(dst, src []byte, heldCR bool) ([]byte, bool) {
	for _, b := range src {
		if heldCR {
			if b != '\n' {
				dst = append(dst, '\r')
			}
			heldCR = false
		}
		if b == '\r' {
			heldCR = true
			continue
		}
		dst = append(dst, b)
	}
	return dst, heldCR
}
