package decision

import "sync"

// completedCap bounds the memory spent remembering ended calls. The set only
// needs to cover the replay window after a stream reconnect.
const completedCap = 4096

// callState is what the engine remembers about a live call.
type callState struct {
	userID      string
	established bool
	enforced    bool
}

// tracker maintains active-call state so enforcement happens exactly once
// per call and terminal events replayed after a reconnect are ignored.
type tracker struct {
	mu        sync.Mutex
	active    map[string]*callState
	completed map[string]struct{}
	order     []string
}

func newTracker() *tracker {
	return &tracker{
		active:    make(map[string]*callState),
		completed: make(map[string]struct{}),
	}
}

// observe registers the call if new and returns whether it is established
// (answered or otherwise past the offer stage).
func (t *tracker) observe(callID, userID string, answered bool) (established bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.active[callID]
	if !ok {
		state = &callState{userID: userID}
		t.active[callID] = state
	}
	if userID != "" {
		state.userID = userID
	}
	if answered {
		state.established = true
	}
	return state.established
}

// markEnforced flips the call's enforced flag, returning false when a
// control action was already issued for this call.
func (t *tracker) markEnforced(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.active[callID]
	if !ok || state.enforced {
		return false
	}
	state.enforced = true
	return true
}

// complete retires the call. Returns false when the call was already
// completed, which flags a duplicate terminal event.
func (t *tracker) complete(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.completed[callID]; done {
		return false
	}
	delete(t.active, callID)
	t.completed[callID] = struct{}{}
	t.order = append(t.order, callID)
	if len(t.order) > completedCap {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.completed, oldest)
	}
	return true
}

// activeCallsForUser lists call ids not yet enforced for a user, for
// mid-call termination on a verdict transition.
func (t *tracker) activeCallsForUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for callID, state := range t.active {
		if state.userID == userID && !state.enforced {
			out = append(out, callID)
		}
	}
	return out
}
