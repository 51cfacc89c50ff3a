package wire

import "strings"

const errPrefix = "-ERR "

// CommandReply is the command/reply view over a framed message. Success is
// decided by the Reply-Text header.
type CommandReply struct {
	msg *Message
}

// NewCommandReply wraps a command/reply message.
func NewCommandReply(m *Message) *CommandReply { return &CommandReply{msg: m} }

// Message returns the underlying framed message.
func (r *CommandReply) Message() *Message { return r.msg }

// ReplyText returns the raw Reply-Text header.
func (r *CommandReply) ReplyText() string { return r.msg.Header(HeaderReplyText) }

// Success reports whether the reply text starts with +OK.
func (r *CommandReply) Success() bool {
	return strings.HasPrefix(r.ReplyText(), "+OK")
}

// ErrorMessage returns the text after "-ERR ", or "" on success.
func (r *CommandReply) ErrorMessage() string {
	if r.Success() {
		return ""
	}
	return strings.TrimPrefix(r.ReplyText(), errPrefix)
}

// Header exposes a header of the underlying message. Outbound channel data
// arrives as a command/reply whose headers carry the full channel state.
func (r *CommandReply) Header(name string) string { return r.msg.Header(name) }

// APIResponse is the api/response view over a framed message. The result of
// the command is the message body.
type APIResponse struct {
	msg  *Message
	body string
}

// NewAPIResponse wraps an api/response message, trimming trailing newlines
// from the body.
func NewAPIResponse(m *Message) *APIResponse {
	return &APIResponse{msg: m, body: m.BodyString()}
}

// Message returns the underlying framed message.
func (r *APIResponse) Message() *Message { return r.msg }

// Body returns the response body with trailing newlines trimmed.
func (r *APIResponse) Body() string { return r.body }

// Success reports whether the body denotes success. FreeSWITCH answers
// "-ERR no reply" for commands that legitimately return nothing, so that
// exact prefix counts as success; the error text stays readable through
// ErrorMessage for diagnostics.
func (r *APIResponse) Success() bool {
	if r.body == "" {
		return false
	}
	if strings.HasPrefix(r.body, "-ERR no reply") {
		return true
	}
	return r.body[0] != '-'
}

// ErrorMessage returns the text after "-ERR ", or "" when the body carries
// no error marker.
func (r *APIResponse) ErrorMessage() string {
	if !strings.HasPrefix(r.body, errPrefix) {
		return ""
	}
	return strings.TrimPrefix(r.body, errPrefix)
}

// BackgroundJobResult is the outcome of a bgapi command, derived from the
// body of its BACKGROUND_JOB event.
type BackgroundJobResult struct {
	event *Event
	body  string
}

// NewBackgroundJobResult derives the job outcome from a BACKGROUND_JOB
// event.
func NewBackgroundJobResult(ev *Event) *BackgroundJobResult {
	return &BackgroundJobResult{
		event: ev,
		body:  strings.TrimRight(string(ev.Body()), "\n"),
	}
}

// Event returns the BACKGROUND_JOB event the result was derived from.
func (r *BackgroundJobResult) Event() *Event { return r.event }

// JobUUID returns the job identifier.
func (r *BackgroundJobResult) JobUUID() string { return r.event.JobUUID() }

// Success reports whether the job body starts with +OK.
func (r *BackgroundJobResult) Success() bool {
	return strings.HasPrefix(r.body, "+OK")
}

// Body returns the job result payload: the text after "+OK ", or the whole
// body when the marker is missing.
func (r *BackgroundJobResult) Body() string {
	return strings.TrimPrefix(strings.TrimPrefix(r.body, "+OK "), "+OK")
}

// ErrorMessage returns the text after "-ERR ", or "" on success.
func (r *BackgroundJobResult) ErrorMessage() string {
	if !strings.HasPrefix(r.body, errPrefix) {
		return ""
	}
	return strings.TrimPrefix(r.body, errPrefix)
}
