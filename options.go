package eventsocket

import (
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/switchkit/eventsocket/types"
)

// Defaults applied by NewOptions.
const (
	// DefaultResponseTimeout bounds how long a transaction waits for its
	// correlated reply.
	DefaultResponseTimeout = 5 * time.Second

	// disconnectNoticeTimeout bounds the wait for the disconnect notice
	// that follows an exit command. Fixed by protocol convention.
	disconnectNoticeTimeout = 2 * time.Second

	defaultReadBufferSize = 4096
	defaultAcceptBacklog  = 64
)

// Options tunes a connection or listener. Zero-valued fields fall back to
// the defaults; merge explicit settings over NewOptions() with Apply.
type Options struct {
	// ResponseTimeout is the per-transaction reply timeout. It also bounds
	// the inbound wait for the auth/request greeting.
	ResponseTimeout types.NullDuration `json:"responseTimeout" envconfig:"ESL_RESPONSE_TIMEOUT"`

	// ReadBufferSize is the socket read chunk size.
	ReadBufferSize null.Int `json:"readBufferSize" envconfig:"ESL_READ_BUFFER_SIZE"`

	// AcceptBacklog is how many accepted outbound sessions may queue
	// before the listener starts dropping them.
	AcceptBacklog null.Int `json:"acceptBacklog" envconfig:"ESL_ACCEPT_BACKLOG"`
}

// NewOptions returns the default option set.
func NewOptions() Options {
	return Options{
		ResponseTimeout: types.NewNullDuration(DefaultResponseTimeout, false),
		ReadBufferSize:  null.NewInt(defaultReadBufferSize, false),
		AcceptBacklog:   null.NewInt(defaultAcceptBacklog, false),
	}
}

// Apply merges every valid field of other over o and returns the result.
func (o Options) Apply(other Options) Options {
	if other.ResponseTimeout.Valid {
		o.ResponseTimeout = other.ResponseTimeout
	}
	if other.ReadBufferSize.Valid {
		o.ReadBufferSize = other.ReadBufferSize
	}
	if other.AcceptBacklog.Valid {
		o.AcceptBacklog = other.AcceptBacklog
	}
	return o
}

func (o Options) responseTimeout() time.Duration {
	if d := o.ResponseTimeout.ValueOrZero(); d > 0 {
		return d
	}
	return DefaultResponseTimeout
}

func (o Options) readBufferSize() int {
	if n := o.ReadBufferSize.ValueOrZero(); n > 0 {
		return int(n)
	}
	return defaultReadBufferSize
}

func (o Options) acceptBacklog() int {
	if n := o.AcceptBacklog.ValueOrZero(); n > 0 {
		return int(n)
	}
	return defaultAcceptBacklog
}
