package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, raw string) []*Message {
	t.Helper()
	dec := NewDecoder()
	msgs, err := dec.Write([]byte(raw))
	require.NoError(t, err)
	return msgs
}

func TestParserSingleMessage(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "Content-Type: auth/request\n\n")
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "auth/request", m.ContentType())
	assert.False(t, m.HasBody())
	assert.Nil(t, m.Body())
}

func TestParserBody(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "Content-Type: api/response\nContent-Length: 12\n\nhello world\n")
	require.Len(t, msgs, 1)

	m := msgs[0]
	require.True(t, m.HasBody())
	assert.Equal(t, "hello world\n", string(m.Body()))
	assert.Equal(t, "hello world", m.BodyString())
}

func TestParserConcatenatedMessages(t *testing.T) {
	t.Parallel()
	raw := strings.Repeat("Content-Type: command/reply\nReply-Text: +OK\n\n", 3) +
		"Content-Type: api/response\nContent-Length: 3\n\nfoo" +
		"Content-Type: text/disconnect-notice\n\n"

	msgs := feedAll(t, raw)
	require.Len(t, msgs, 5)
	assert.Equal(t, "command/reply", msgs[0].ContentType())
	assert.Equal(t, "command/reply", msgs[2].ContentType())
	assert.Equal(t, "foo", string(msgs[3].Body()))
	assert.Equal(t, "text/disconnect-notice", msgs[4].ContentType())
}

func TestParserChunkBoundaries(t *testing.T) {
	t.Parallel()
	raw := "Content-Type: api/response\nContent-Length: 5\n\nhelloContent-Type: command/reply\nReply-Text: +OK\n\n"

	// Byte-at-a-time delivery must produce the same two messages.
	dec := NewDecoder()
	var msgs []*Message
	for i := 0; i < len(raw); i++ {
		got, err := dec.Write([]byte{raw[i]})
		require.NoError(t, err)
		msgs = append(msgs, got...)
	}
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", string(msgs[0].Body()))
	assert.Equal(t, "+OK", msgs[1].Header(HeaderReplyText))
}

func TestParserHeaderValueWithColon(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "Location: http://10.0.0.1:8021/path\nContent-Type: command/reply\n\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "http://10.0.0.1:8021/path", msgs[0].Header("Location"))
}

func TestParserMissingContentType(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "Some-Header: x\n\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, "", msgs[0].ContentType())
	assert.Equal(t, "x", msgs[0].Header("Some-Header"))
}

func TestParserZeroContentLength(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "Content-Type: command/reply\nContent-Length: 0\n\n")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].HasBody())
}

func TestParserMalformedContentLength(t *testing.T) {
	t.Parallel()
	dec := NewDecoder()
	_, err := dec.Write([]byte("Content-Type: api/response\nContent-Length: banana\n\n"))
	require.Error(t, err)

	var perr *ProtocolError
	assert.True(t, errors.As(err, &perr))
}

func TestParserExtractOnce(t *testing.T) {
	t.Parallel()
	p := NewParser()
	for _, b := range []byte("Content-Type: auth/request\n\n") {
		_, err := p.Feed(b)
		require.NoError(t, err)
	}
	require.NotNil(t, p.Message())
	assert.Nil(t, p.Message())
}

func TestParserHeaderOrderPreserved(t *testing.T) {
	t.Parallel()
	msgs := feedAll(t, "B: 2\nA: 1\nC: 3\n\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"B", "A", "C"}, msgs[0].HeaderNames())
}
