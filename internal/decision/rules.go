package decision

import "callfence/internal/xsi"

// UserVerdict is the engine's view of a user's permission state. Unknown
// covers both "never reported" and "report aged out"; the fail-closed policy
// treats it like blocked for call initiation.
type UserVerdict string

const (
	VerdictAllowed UserVerdict = "allowed"
	VerdictBlocked UserVerdict = "blocked"
	VerdictUnknown UserVerdict = "unknown"
)

// Action is the control decision for one event.
type Action string

const (
	ActionNone      Action = "none"
	ActionReject    Action = "reject"
	ActionTerminate Action = "terminate"
)

// Decide applies the enforcement rules to produce an action. This is pure
// domain logic - no I/O, no side effects.
//
// Rule priority (fail-closed):
//  1. Terminal events never trigger control actions.
//  2. Call initiation with anything but an allowed verdict is rejected.
//  3. An established call whose user is blocked is terminated.
func Decide(eventType xsi.EventType, verdict UserVerdict, callEstablished bool) Action {
	if eventType == xsi.EventCallReleased {
		return ActionNone
	}

	initiation := eventType == xsi.EventCallReceived || eventType == xsi.EventCallOriginated
	if initiation && verdict != VerdictAllowed {
		return ActionReject
	}

	if callEstablished && verdict == VerdictBlocked {
		return ActionTerminate
	}

	return ActionNone
}
