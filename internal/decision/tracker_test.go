package decision

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Observe(t *testing.T) {
	tr := newTracker()

	assert.False(t, tr.observe("call-1", "user-1", false))
	assert.True(t, tr.observe("call-1", "user-1", true))
	// Established sticks for later events on the same call.
	assert.True(t, tr.observe("call-1", "user-1", false))
}

func TestTracker_MarkEnforcedOnce(t *testing.T) {
	tr := newTracker()
	tr.observe("call-1", "user-1", false)

	assert.True(t, tr.markEnforced("call-1"))
	assert.False(t, tr.markEnforced("call-1"), "second enforcement attempt must be suppressed")
	assert.False(t, tr.markEnforced("unknown-call"))
}

func TestTracker_CompleteDeduplicates(t *testing.T) {
	tr := newTracker()
	tr.observe("call-1", "user-1", false)

	assert.True(t, tr.complete("call-1"))
	assert.False(t, tr.complete("call-1"), "replayed terminal event must be flagged")

	// A completed call has no active state left.
	assert.Empty(t, tr.activeCallsForUser("user-1"))
}

func TestTracker_ActiveCallsForUser(t *testing.T) {
	tr := newTracker()
	tr.observe("call-1", "user-1", true)
	tr.observe("call-2", "user-1", false)
	tr.observe("call-3", "user-2", true)

	assert.ElementsMatch(t, []string{"call-1", "call-2"}, tr.activeCallsForUser("user-1"))

	tr.markEnforced("call-1")
	assert.Equal(t, []string{"call-2"}, tr.activeCallsForUser("user-1"))
}

func TestTracker_CompletedSetIsBounded(t *testing.T) {
	tr := newTracker()
	for i := 0; i <= completedCap; i++ {
		callID := fmt.Sprintf("call-%d", i)
		tr.observe(callID, "user-1", false)
		tr.complete(callID)
	}

	assert.Len(t, tr.completed, completedCap)
	// The oldest entry was evicted, so its terminal can be processed again.
	assert.True(t, tr.complete("call-0"))
}
