// Package pusherproto implements the Pusher-compatible wire protocol: the
// closed client-event and server-event sum types exchanged as WebSocket text
// frames, and the double-JSON-encoding quirk carried by several server-event
// data fields.
package pusherproto

import "encoding/json"

// Event name constants — the tag values of the wire protocol's sum types.
const (
	EventSubscribe   = "pusher:subscribe"
	EventUnsubscribe = "pusher:unsubscribe"
	EventPing        = "pusher:ping"
	EventPong        = "pusher:pong"

	EventConnectionEstablished = "pusher:connection_established"
	EventError                 = "pusher:error"

	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventMemberAdded           = "pusher_internal:member_added"
	EventMemberRemoved         = "pusher_internal:member_removed"
)

// ClientEvent is the closed sum type of everything a connected client may
// send. Variant is discriminated by Event; Data holds the variant's payload
// (decoded further into SubscribeData or UnsubscribeData for the control
// events) and Channel is set only on custom channel events, matching the
// wire, not the language — this is not a class hierarchy with dynamic
// dispatch.
type ClientEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SubscribeData is the decoded `data` payload of a pusher:subscribe frame.
type SubscribeData struct {
	Channel     string          `json:"channel"`
	Auth        string          `json:"auth,omitempty"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// UnsubscribeData is the decoded `data` payload of a pusher:unsubscribe frame.
type UnsubscribeData struct {
	Channel string `json:"channel"`
}

// IsPusherControl reports whether event is one of the reserved
// "pusher:"-prefixed control events rather than a custom channel event.
func IsPusherControl(event string) bool {
	switch event {
	case EventSubscribe, EventUnsubscribe, EventPing:
		return true
	default:
		return false
	}
}

// ConnectionEstablishedPayload is double-JSON-encoded into ServerEvent.Data.
type ConnectionEstablishedPayload struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// MemberAddedPayload is double-JSON-encoded into ServerEvent.Data.
type MemberAddedPayload struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// MemberRemovedPayload is double-JSON-encoded into ServerEvent.Data.
type MemberRemovedPayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload is the (not double-encoded) `data`-less error event shape —
// message/code live at the top level of the frame, see ServerEvent.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    *int   `json:"code,omitempty"`
}

// ServerEvent is the closed sum type of everything the server emits onto a
// session's write side. Several variants carry their `Data` field as a JSON
// string containing the JSON of the inner value — a double-encoding that is
// part of the compatibility contract (see AsJSONString).
type ServerEvent struct {
	Event    string  `json:"event"`
	Channel  string  `json:"channel,omitempty"`
	Data     *string `json:"data,omitempty"`
	UserID   string  `json:"user_id,omitempty"`
	Message  string  `json:"message,omitempty"`
	Code     *int    `json:"code,omitempty"`
}

// AsJSONString double-encodes v: it is marshaled to JSON, and that JSON text
// is itself returned as a Go string suitable for ServerEvent.Data. This is
// the exact "JSON-string-encoded" quirk the wire contract requires for
// connection_established, subscription_succeeded, member_added/removed, and
// custom channel events.
func AsJSONString(v any) (string, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(inner), nil
}

// NewConnectionEstablished builds the handshake-completion server event.
func NewConnectionEstablished(socketID string, activityTimeout int) (ServerEvent, error) {
	s, err := AsJSONString(ConnectionEstablishedPayload{SocketID: socketID, ActivityTimeout: activityTimeout})
	if err != nil {
		return ServerEvent{}, err
	}
	return ServerEvent{Event: EventConnectionEstablished, Data: &s}, nil
}

// NewSubscriptionSucceeded builds the subscribe-acknowledgement server
// event. data is the (always-nil in this implementation, see §9 of the
// expanded spec) presence roster; it is still double-encoded as "null" to
// match the wire contract.
func NewSubscriptionSucceeded(channel string, data any) (ServerEvent, error) {
	s, err := AsJSONString(data)
	if err != nil {
		return ServerEvent{}, err
	}
	return ServerEvent{Event: EventSubscriptionSucceeded, Channel: channel, Data: &s}, nil
}

// NewPong builds the ping-reply server event.
func NewPong() ServerEvent {
	return ServerEvent{Event: EventPong}
}

// NewError builds an inline protocol-error server event. code is nil unless
// a specific numeric error code applies.
func NewError(message string, code *int) ServerEvent {
	return ServerEvent{Event: EventError, Message: message, Code: code}
}

// NewChannelEvent builds a fan-out server event carrying an
// application-defined payload. data is double-encoded per the wire
// contract; userID is the triggering socket-id when the event originated
// from the HTTP control plane's socket_id field, empty otherwise.
func NewChannelEvent(event, channel string, data any, userID string) (ServerEvent, error) {
	s, err := AsJSONString(data)
	if err != nil {
		return ServerEvent{}, err
	}
	return ServerEvent{Event: event, Channel: channel, Data: &s, UserID: userID}, nil
}
