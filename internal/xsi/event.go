// Package xsi talks to the telephony platform's call-control surface: the
// event channel we subscribe to and the control API we issue reject and
// terminate actions against.
package xsi

import (
	"encoding/json"
	"time"

	dErrors "callfence/pkg/domain-errors"
)

// EventType discriminates call-lifecycle events on the channel.
type EventType string

const (
	EventCallReceived   EventType = "CallReceivedEvent"
	EventCallOriginated EventType = "CallOriginatedEvent"
	EventCallAnswered   EventType = "CallAnsweredEvent"
	EventCallReleased   EventType = "CallReleasedEvent"
	EventHeartbeat      EventType = "ChannelHeartbeatEvent"
)

// CallEvent is the consumed slice of an event envelope. Ephemeral: it exists
// only to drive one decision.
type CallEvent struct {
	Type       EventType
	CallID     string
	UserID     string // remote/acting party when internal
	TargetID   string // subscription target (the monitored user)
	ReceivedAt time.Time
}

// IsInitiation reports whether this event offers a new call that can still
// be rejected.
func (e CallEvent) IsInitiation() bool {
	return e.Type == EventCallReceived || e.Type == EventCallOriginated
}

// IsTerminal reports whether the call has ended.
func (e CallEvent) IsTerminal() bool {
	return e.Type == EventCallReleased
}

// ActingUserID resolves the internal user the decision applies to: the
// subscription target when present, the remote party otherwise.
func (e CallEvent) ActingUserID() string {
	if e.TargetID != "" {
		return e.TargetID
	}
	return e.UserID
}

// envelope mirrors the platform's nested event shape; only the fields the
// decision engine consumes are mapped.
type envelope struct {
	Event struct {
		TargetID  string `json:"targetId"`
		EventData struct {
			Type string `json:"type"`
			Call struct {
				CallID      string `json:"callId"`
				RemoteParty struct {
					UserID string `json:"userId"`
				} `json:"remoteParty"`
			} `json:"call"`
		} `json:"eventData"`
	} `json:"event"`
}

// ParseEvent extracts a CallEvent from a raw envelope. Malformed payloads
// are an input validation error; callers drop them without mutating state.
func ParseEvent(raw []byte, receivedAt time.Time) (*CallEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed event envelope")
	}
	if env.Event.EventData.Type == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event envelope missing type")
	}

	ev := &CallEvent{
		Type:       EventType(env.Event.EventData.Type),
		CallID:     env.Event.EventData.Call.CallID,
		UserID:     env.Event.EventData.Call.RemoteParty.UserID,
		TargetID:   env.Event.TargetID,
		ReceivedAt: receivedAt,
	}
	if ev.Type != EventHeartbeat && ev.CallID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "call event missing call id")
	}
	return ev, nil
}
