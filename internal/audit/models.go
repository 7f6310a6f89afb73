package audit

import "time"

// Action identifies what the system did or observed.
type Action string

const (
	ActionLocationRecorded  Action = "location_recorded"
	ActionCallAllowed       Action = "call_allowed"
	ActionCallRejected      Action = "call_rejected"
	ActionCallTerminated    Action = "call_terminated"
	ActionEnforcementMissed Action = "enforcement_missed"
	ActionSessionStarted    Action = "session_started"
	ActionSessionStopped    Action = "session_stopped"
	ActionSessionDegraded   Action = "session_degraded"
)

// Reason explains why an enforcement action was taken or skipped.
type Reason string

const (
	ReasonOutOfBounds      Reason = "out_of_bounds"
	ReasonStaleLocation    Reason = "stale_location"
	ReasonNoLocationOnFile Reason = "no_location_on_file"
	ReasonInBounds         Reason = "in_bounds"
	ReasonControlAPIFailed Reason = "control_api_failed"
	ReasonCredentialLapsed Reason = "credential_expired"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Action    Action    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
