package wire

import (
	"bytes"
	"strings"

	"github.com/serenize/snaker"
	"github.com/tidwall/gjson"
)

// EventName is the internal CamelCase form of a FreeSWITCH event name. The
// wire form is UPPER_UNDERSCORE; the two convert mechanically.
type EventName string

// EventUnknown is the fallback for event names outside the enumerated set.
const EventUnknown EventName = "Unknown"

// The FreeSWITCH event catalogue.
const (
	EventCustom                 EventName = "Custom"
	EventClone                  EventName = "Clone"
	EventChannelCreate          EventName = "ChannelCreate"
	EventChannelDestroy         EventName = "ChannelDestroy"
	EventChannelState           EventName = "ChannelState"
	EventChannelCallstate       EventName = "ChannelCallstate"
	EventChannelAnswer          EventName = "ChannelAnswer"
	EventChannelHangup          EventName = "ChannelHangup"
	EventChannelHangupComplete  EventName = "ChannelHangupComplete"
	EventChannelExecute         EventName = "ChannelExecute"
	EventChannelExecuteComplete EventName = "ChannelExecuteComplete"
	EventChannelHold            EventName = "ChannelHold"
	EventChannelUnhold          EventName = "ChannelUnhold"
	EventChannelBridge          EventName = "ChannelBridge"
	EventChannelUnbridge        EventName = "ChannelUnbridge"
	EventChannelProgress        EventName = "ChannelProgress"
	EventChannelProgressMedia   EventName = "ChannelProgressMedia"
	EventChannelOutgoing        EventName = "ChannelOutgoing"
	EventChannelPark            EventName = "ChannelPark"
	EventChannelUnpark          EventName = "ChannelUnpark"
	EventChannelApplication     EventName = "ChannelApplication"
	EventChannelOriginate       EventName = "ChannelOriginate"
	EventChannelUUID            EventName = "ChannelUUID"
	EventAPI                    EventName = "API"
	EventLog                    EventName = "Log"
	EventInboundChan            EventName = "InboundChan"
	EventOutboundChan           EventName = "OutboundChan"
	EventStartup                EventName = "Startup"
	EventShutdown               EventName = "Shutdown"
	EventPublish                EventName = "Publish"
	EventUnpublish              EventName = "Unpublish"
	EventTalk                   EventName = "Talk"
	EventNotalk                 EventName = "Notalk"
	EventSessionCrash           EventName = "SessionCrash"
	EventModuleLoad             EventName = "ModuleLoad"
	EventModuleUnload           EventName = "ModuleUnload"
	EventDtmf                   EventName = "Dtmf"
	EventMessage                EventName = "Message"
	EventPresenceIn             EventName = "PresenceIn"
	EventNotifyIn               EventName = "NotifyIn"
	EventPresenceOut            EventName = "PresenceOut"
	EventPresenceProbe          EventName = "PresenceProbe"
	EventMessageWaiting         EventName = "MessageWaiting"
	EventMessageQuery           EventName = "MessageQuery"
	EventRoster                 EventName = "Roster"
	EventCodec                  EventName = "Codec"
	EventBackgroundJob          EventName = "BackgroundJob"
	EventDetectedSpeech         EventName = "DetectedSpeech"
	EventDetectedTone           EventName = "DetectedTone"
	EventPrivateCommand         EventName = "PrivateCommand"
	EventHeartbeat              EventName = "Heartbeat"
	EventTrap                   EventName = "Trap"
	EventAddSchedule            EventName = "AddSchedule"
	EventDelSchedule            EventName = "DelSchedule"
	EventExeSchedule            EventName = "ExeSchedule"
	EventReSchedule             EventName = "ReSchedule"
	EventReloadxml              EventName = "Reloadxml"
	EventNotify                 EventName = "Notify"
	EventSendMessage            EventName = "SendMessage"
	EventRecvMessage            EventName = "RecvMessage"
	EventRequestParams          EventName = "RequestParams"
	EventChannelData            EventName = "ChannelData"
	EventGeneral                EventName = "General"
	EventCommand                EventName = "Command"
	EventSessionHeartbeat       EventName = "SessionHeartbeat"
	EventClientDisconnected     EventName = "ClientDisconnected"
	EventServerDisconnected     EventName = "ServerDisconnected"
	EventSendInfo               EventName = "SendInfo"
	EventRecvInfo               EventName = "RecvInfo"
	EventRecvRtcpMessage        EventName = "RecvRtcpMessage"
	EventCallSecure             EventName = "CallSecure"
	EventNat                    EventName = "Nat"
	EventRecordStart            EventName = "RecordStart"
	EventRecordStop             EventName = "RecordStop"
	EventPlaybackStart          EventName = "PlaybackStart"
	EventPlaybackStop           EventName = "PlaybackStop"
	EventCallUpdate             EventName = "CallUpdate"
	EventFailure                EventName = "Failure"
	EventSocketData             EventName = "SocketData"
	EventMediaBugStart          EventName = "MediaBugStart"
	EventMediaBugStop           EventName = "MediaBugStop"
	EventConferenceDataQuery    EventName = "ConferenceDataQuery"
	EventConferenceData         EventName = "ConferenceData"
	EventCallSetupReq           EventName = "CallSetupReq"
	EventCallSetupResult        EventName = "CallSetupResult"
	EventCallDetail             EventName = "CallDetail"
	EventDeviceState            EventName = "DeviceState"
	EventAll                    EventName = "All"
)

var knownEvents = func() map[EventName]struct{} {
	names := []EventName{
		EventCustom, EventClone, EventChannelCreate, EventChannelDestroy,
		EventChannelState, EventChannelCallstate, EventChannelAnswer,
		EventChannelHangup, EventChannelHangupComplete, EventChannelExecute,
		EventChannelExecuteComplete, EventChannelHold, EventChannelUnhold,
		EventChannelBridge, EventChannelUnbridge, EventChannelProgress,
		EventChannelProgressMedia, EventChannelOutgoing, EventChannelPark,
		EventChannelUnpark, EventChannelApplication, EventChannelOriginate,
		EventChannelUUID, EventAPI, EventLog, EventInboundChan,
		EventOutboundChan, EventStartup, EventShutdown, EventPublish,
		EventUnpublish, EventTalk, EventNotalk, EventSessionCrash,
		EventModuleLoad, EventModuleUnload, EventDtmf, EventMessage,
		EventPresenceIn, EventNotifyIn, EventPresenceOut, EventPresenceProbe,
		EventMessageWaiting, EventMessageQuery, EventRoster, EventCodec,
		EventBackgroundJob, EventDetectedSpeech, EventDetectedTone,
		EventPrivateCommand, EventHeartbeat, EventTrap, EventAddSchedule,
		EventDelSchedule, EventExeSchedule, EventReSchedule, EventReloadxml,
		EventNotify, EventSendMessage, EventRecvMessage, EventRequestParams,
		EventChannelData, EventGeneral, EventCommand, EventSessionHeartbeat,
		EventClientDisconnected, EventServerDisconnected, EventSendInfo,
		EventRecvInfo, EventRecvRtcpMessage, EventCallSecure, EventNat,
		EventRecordStart, EventRecordStop, EventPlaybackStart,
		EventPlaybackStop, EventCallUpdate, EventFailure, EventSocketData,
		EventMediaBugStart, EventMediaBugStop, EventConferenceDataQuery,
		EventConferenceData, EventCallSetupReq, EventCallSetupResult,
		EventCallDetail, EventDeviceState, EventAll,
	}
	m := make(map[EventName]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}()

// Wire returns the UPPER_UNDERSCORE form used on the socket.
func (n EventName) Wire() string {
	return strings.ToUpper(snaker.CamelToSnake(string(n)))
}

func (n EventName) String() string { return string(n) }

// EventNameFromWire converts an UPPER_UNDERSCORE wire name to its internal
// form, falling back to EventUnknown for names outside the catalogue.
func EventNameFromWire(wire string) EventName {
	n := EventName(snaker.SnakeToCamel(strings.ToLower(wire)))
	if _, ok := knownEvents[n]; !ok {
		return EventUnknown
	}
	return n
}

// Event is the event view over a framed message. For text/event-plain the
// body is itself a header block (plus an optional Content-Length-framed
// payload); for text/event-json it is a JSON object with an optional _body
// member. Channel data delivered as a command/reply is exposed through the
// outer headers unchanged.
type Event struct {
	msg     *Message
	headers *Message // event headers reuse the header-block machinery
	body    []byte
	rawName string
}

// NewEvent lifts a framed message into its event view.
func NewEvent(m *Message) (*Event, error) {
	ev := &Event{msg: m, headers: &Message{}}
	switch m.ContentType() {
	case ContentTypeEventPlain:
		ev.parsePlainBody(m.Body())
	case ContentTypeEventJSON:
		if err := ev.parseJSONBody(m.Body()); err != nil {
			return nil, err
		}
	default:
		// Channel data and similar: event headers live on the outer frame.
		ev.headers = m
	}
	ev.rawName = ev.headers.Header(HeaderEventName)
	return ev, nil
}

func (ev *Event) parsePlainBody(body []byte) {
	block, rest := body, []byte(nil)
	if idx := bytes.Index(body, []byte("\n\n")); idx >= 0 {
		block, rest = body[:idx], body[idx+2:]
	}
	parseHeaderBlock(ev.headers, block)
	if len(rest) == 0 {
		return
	}
	if n, err := ev.headers.contentLength(); err == nil && n > 0 && n <= len(rest) {
		rest = rest[:n]
	}
	ev.body = rest
}

func (ev *Event) parseJSONBody(body []byte) error {
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return &ProtocolError{Reason: "event body is not a JSON object"}
	}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "_body" {
			ev.body = []byte(value.String())
			return true
		}
		ev.headers.setHeader(key.String(), value.String())
		return true
	})
	return nil
}

// Message returns the outer framed message the event arrived in.
func (ev *Event) Message() *Message { return ev.msg }

// Name returns the enumerated event name, or EventUnknown.
func (ev *Event) Name() EventName { return EventNameFromWire(ev.rawName) }

// RawName returns the wire-form event name exactly as received.
func (ev *Event) RawName() string { return ev.rawName }

// Subclass returns Event-Subclass, set on CUSTOM events.
func (ev *Event) Subclass() string { return ev.headers.Header(HeaderEventSubclass) }

// ChannelUUID returns Unique-ID, the call leg the event belongs to, or ""
// for switch-level events.
func (ev *Event) ChannelUUID() string { return ev.headers.Header(HeaderUniqueID) }

// JobUUID returns the background job identifier on BACKGROUND_JOB events.
func (ev *Event) JobUUID() string { return ev.headers.Header(HeaderJobUUID) }

// ApplicationUUID returns the correlation token on execute-complete events.
func (ev *Event) ApplicationUUID() string { return ev.headers.Header(HeaderApplicationUUID) }

// ResponseText returns Application-Response from execute-complete events.
func (ev *Event) ResponseText() string { return ev.headers.Header("Application-Response") }

// HangupCause returns the Hangup-Cause header, e.g. UNALLOCATED_NUMBER.
func (ev *Event) HangupCause() string { return ev.headers.Header("Hangup-Cause") }

// Header returns a named event header without percent-decoding.
func (ev *Event) Header(name string) string { return ev.headers.Header(name) }

// HasHeader reports whether the named event header is present.
func (ev *Event) HasHeader(name string) bool { return ev.headers.HasHeader(name) }

// Body returns the event payload (for example a bgapi result), or nil.
func (ev *Event) Body() []byte { return ev.body }

// IsEventMessage reports whether a framed message carries an event body.
func IsEventMessage(m *Message) bool {
	ct := m.ContentType()
	return ct == ContentTypeEventPlain || ct == ContentTypeEventJSON
}
