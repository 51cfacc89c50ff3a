// Package wire implements the framing layer of the FreeSWITCH Event Socket
// protocol: splitting a byte stream into messages and exposing typed views
// (command replies, api responses, events) over them.
package wire

import (
	"bytes"
	"strconv"
	"strings"
)

// Content types FreeSWITCH stamps on framed messages. Anything else is
// carried through as an opaque message.
const (
	ContentTypeAuthRequest      = "auth/request"
	ContentTypeCommandReply     = "command/reply"
	ContentTypeAPIResponse      = "api/response"
	ContentTypeEventPlain       = "text/event-plain"
	ContentTypeEventJSON        = "text/event-json"
	ContentTypeDisconnectNotice = "text/disconnect-notice"
)

// Well-known header names.
const (
	HeaderContentType     = "Content-Type"
	HeaderContentLength   = "Content-Length"
	HeaderReplyText       = "Reply-Text"
	HeaderEventName       = "Event-Name"
	HeaderEventSubclass   = "Event-Subclass"
	HeaderUniqueID        = "Unique-ID"
	HeaderJobUUID         = "Job-UUID"
	HeaderApplicationUUID = "Application-UUID"
	HeaderChannelCallUUID = "Channel-Call-UUID"
)

// Message is a single framed ESL message: a set of unique, case-sensitive
// headers in arrival order, plus an optional Content-Length-framed body.
// A body of zero declared length is absent, not empty.
type Message struct {
	keys    []string
	headers map[string]string
	body    []byte
	hasBody bool
}

// NewMessage builds a message from scratch. Mostly useful in tests; the
// framer is the normal producer.
func NewMessage(headers [][2]string, body []byte) *Message {
	m := &Message{headers: make(map[string]string, len(headers))}
	for _, kv := range headers {
		m.setHeader(kv[0], kv[1])
	}
	if body != nil {
		m.body = body
		m.hasBody = true
	}
	return m
}

func (m *Message) setHeader(name, value string) {
	if m.headers == nil {
		m.headers = make(map[string]string)
	}
	if _, dup := m.headers[name]; !dup {
		m.keys = append(m.keys, name)
	}
	m.headers[name] = value
}

// Header returns the value of the named header, or "" when absent.
// Header values are not percent-decoded.
func (m *Message) Header(name string) string { return m.headers[name] }

// HasHeader reports whether the named header is present.
func (m *Message) HasHeader(name string) bool {
	_, ok := m.headers[name]
	return ok
}

// HeaderNames returns the header names in arrival order.
func (m *Message) HeaderNames() []string {
	names := make([]string, len(m.keys))
	copy(names, m.keys)
	return names
}

// ContentType returns the Content-Type header, or "" when absent.
func (m *Message) ContentType() string { return m.headers[HeaderContentType] }

// Body returns the raw message body. It is nil when the message carries no
// body.
func (m *Message) Body() []byte { return m.body }

// HasBody reports whether the message declared a non-zero Content-Length.
func (m *Message) HasBody() bool { return m.hasBody }

// BodyString returns the body with trailing newlines trimmed.
func (m *Message) BodyString() string {
	return strings.TrimRight(string(m.body), "\n")
}

// String renders the message in wire-ish shape for diagnostics.
func (m *Message) String() string {
	var b bytes.Buffer
	for _, k := range m.keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(m.headers[k])
		b.WriteByte('\n')
	}
	if m.hasBody {
		b.WriteByte('\n')
		b.Write(m.body)
	}
	return b.String()
}

// parseHeaderBlock parses "Key: Value" lines separated by LF. Values are
// split on the first ": " per line so URLs and timestamps survive intact.
func parseHeaderBlock(m *Message, block []byte) {
	for _, line := range strings.Split(string(block), "\n") {
		if line == "" {
			continue
		}
		if idx := strings.Index(line, ": "); idx >= 0 {
			m.setHeader(line[:idx], line[idx+2:])
			continue
		}
		// Tolerate a missing space after the colon.
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			m.setHeader(line[:idx], strings.TrimLeft(line[idx+1:], " "))
		}
	}
}

// contentLength returns the declared body length of a header block, or an
// error when the declaration is not a base-10 integer.
func (m *Message) contentLength() (int, error) {
	raw, ok := m.headers[HeaderContentLength]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, &ProtocolError{Reason: "malformed Content-Length " + strconv.Quote(raw)}
	}
	return n, nil
}

// ProtocolError reports a message that is ill-formed beyond framer
// recovery. It terminates the connection that produced it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "esl protocol violation: " + e.Reason }
