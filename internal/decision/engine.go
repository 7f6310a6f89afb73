// Package decision consumes call-lifecycle events, resolves the acting
// user's geofence verdict, and issues reject or terminate actions against
// the telephony control API. Rules are centralized and pure; the engine owns
// ordering, exactly-once enforcement, and the control API conversation.
package decision

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"callfence/internal/audit"
	"callfence/internal/decision/metrics"
	"callfence/internal/geofence"
	"callfence/internal/location"
	"callfence/internal/xsi"
	dErrors "callfence/pkg/domain-errors"
)

// ControlAPI issues call control actions.
type ControlAPI interface {
	RejectCall(ctx context.Context, userID, callID string) error
	TerminateCall(ctx context.Context, userID, callID string) error
}

// VerdictSource resolves a user's current permission state.
type VerdictSource interface {
	CurrentVerdict(ctx context.Context, userID string) (*location.Status, error)
}

// task is one unit of work for a partition worker: either an inbound call
// event or a mid-call terminate directive raised by a verdict transition.
// Both are partitioned by call id so per-call order is preserved.
type task struct {
	event     *xsi.CallEvent
	terminate *terminateDirective
}

type terminateDirective struct {
	userID string
	callID string
}

type transition struct {
	userID string
}

// Engine is the call decision engine. Events for different users may be
// processed out of order relative to each other, but events for the same
// call id always land on the same worker in arrival order.
type Engine struct {
	events   <-chan xsi.CallEvent
	control  ControlAPI
	verdicts VerdictSource
	auditor  *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	workers  int

	tracker     *tracker
	transitions chan transition
}

// NewEngine constructs the engine over the listener's event queue.
func NewEngine(events <-chan xsi.CallEvent, control ControlAPI, verdicts VerdictSource, auditor *audit.Publisher, logger *slog.Logger, m *metrics.Metrics, workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		events:      events,
		control:     control,
		verdicts:    verdicts,
		auditor:     auditor,
		logger:      logger,
		metrics:     m,
		workers:     workers,
		tracker:     newTracker(),
		transitions: make(chan transition, 256),
	}
}

// NotifyTransition is registered with the location service. A user moving
// out of bounds mid-call triggers termination of their active calls.
func (e *Engine) NotifyTransition(userID string, _, to geofence.Verdict) {
	if to != geofence.VerdictBlocked {
		return
	}
	select {
	case e.transitions <- transition{userID: userID}:
	default:
		e.logger.Warn("transition queue full, dropping mid-call check", "user_id", userID)
	}
}

// Run processes events until ctx is cancelled. The only error it returns
// besides cancellation is an unrefreshable credential, which the session
// manager treats as a permanent failure.
func (e *Engine) Run(ctx context.Context) error {
	partitions := make([]chan task, e.workers)
	for i := range partitions {
		partitions[i] = make(chan task, 64)
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := range partitions {
		part := partitions[i]
		g.Go(func() error {
			for t := range part {
				if err := e.process(ctx, t); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, part := range partitions {
				close(part)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event := <-e.events:
				select {
				case partitions[e.partition(event.CallID)] <- task{event: &event}:
				case <-ctx.Done():
					return ctx.Err()
				}
			case tr := <-e.transitions:
				for _, callID := range e.tracker.activeCallsForUser(tr.userID) {
					directive := &terminateDirective{userID: tr.userID, callID: callID}
					select {
					case partitions[e.partition(callID)] <- task{terminate: directive}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) partition(callID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(callID))
	return int(h.Sum32() % uint32(e.workers))
}

func (e *Engine) process(ctx context.Context, t task) error {
	if t.terminate != nil {
		return e.enforceTransition(ctx, t.terminate)
	}
	return e.processEvent(ctx, *t.event)
}

func (e *Engine) processEvent(ctx context.Context, event xsi.CallEvent) error {
	if event.IsTerminal() {
		if !e.tracker.complete(event.CallID) {
			// Terminal event replayed after a reconnect; already handled.
			e.logger.Debug("duplicate terminal event ignored", "call_id", event.CallID)
		}
		return nil
	}

	userID := event.ActingUserID()
	established := e.tracker.observe(event.CallID, userID, event.Type == xsi.EventCallAnswered)

	verdict, reason := e.resolveVerdict(ctx, userID)
	action := Decide(event.Type, verdict, established)
	e.metrics.ObserveOutcome(string(action), string(reason))

	switch action {
	case ActionReject:
		return e.enforce(ctx, ActionReject, userID, event.CallID, reason)
	case ActionTerminate:
		return e.enforce(ctx, ActionTerminate, userID, event.CallID, reason)
	default:
		// Allowed events leave a trail too; the trail must show the call
		// was observed and let through, not just the enforcement actions.
		e.emitAudit(ctx, audit.Event{
			UserID:   userID,
			CallID:   event.CallID,
			Action:   audit.ActionCallAllowed,
			Decision: string(verdict),
			Reason:   reason,
		})
		return nil
	}
}

func (e *Engine) enforceTransition(ctx context.Context, d *terminateDirective) error {
	// Re-check: a newer report may have moved the user back in bounds by
	// the time the directive is processed.
	verdict, reason := e.resolveVerdict(ctx, d.userID)
	if verdict != VerdictBlocked {
		return nil
	}
	return e.enforce(ctx, ActionTerminate, d.userID, d.callID, reason)
}

// enforce issues the control action exactly once per call, retrying once on
// a transient failure. A final failure is a missed-enforcement incident:
// audited and surfaced, never silently dropped.
func (e *Engine) enforce(ctx context.Context, action Action, userID, callID string, reason audit.Reason) error {
	if !e.tracker.markEnforced(callID) {
		return nil
	}

	start := time.Now()
	err := e.issue(ctx, action, userID, callID)
	if err != nil && dErrors.HasCode(err, dErrors.CodeUnavailable) {
		err = e.issue(ctx, action, userID, callID)
	}
	e.metrics.ObserveControlLatency(string(action), time.Since(start))

	if err == nil {
		auditAction := audit.ActionCallRejected
		if action == ActionTerminate {
			auditAction = audit.ActionCallTerminated
		}
		e.logger.InfoContext(ctx, "control action issued",
			"action", action,
			"user_id", userID,
			"call_id", callID,
			"reason", reason,
		)
		e.emitAudit(ctx, audit.Event{
			UserID:   userID,
			CallID:   callID,
			Action:   auditAction,
			Decision: string(VerdictBlocked),
			Reason:   reason,
		})
		return nil
	}

	e.metrics.IncMissedEnforcement()
	e.logger.ErrorContext(ctx, "missed enforcement incident",
		"action", action,
		"user_id", userID,
		"call_id", callID,
		"error", err,
	)
	missedReason := audit.ReasonControlAPIFailed
	if dErrors.HasCode(err, dErrors.CodeCredentialExpired) {
		missedReason = audit.ReasonCredentialLapsed
	}
	e.emitAudit(ctx, audit.Event{
		UserID: userID,
		CallID: callID,
		Action: audit.ActionEnforcementMissed,
		Reason: missedReason,
		Detail: err.Error(),
	})

	if dErrors.HasCode(err, dErrors.CodeCredentialExpired) {
		// Unrefreshable credential is permanent; surface to the manager.
		return err
	}
	return nil
}

func (e *Engine) issue(ctx context.Context, action Action, userID, callID string) error {
	if action == ActionTerminate {
		return e.control.TerminateCall(ctx, userID, callID)
	}
	return e.control.RejectCall(ctx, userID, callID)
}

// resolveVerdict maps the location service's answer onto the engine's
// fail-closed view.
func (e *Engine) resolveVerdict(ctx context.Context, userID string) (UserVerdict, audit.Reason) {
	status, err := e.verdicts.CurrentVerdict(ctx, userID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			e.logger.ErrorContext(ctx, "verdict lookup failed, failing closed",
				"user_id", userID,
				"error", err,
			)
		}
		return VerdictUnknown, audit.ReasonNoLocationOnFile
	}
	if status.Stale {
		return VerdictUnknown, audit.ReasonStaleLocation
	}
	if status.Verdict == geofence.VerdictBlocked {
		return VerdictBlocked, audit.ReasonOutOfBounds
	}
	return VerdictAllowed, audit.ReasonInBounds
}

func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"call_id", event.CallID,
			"error", err,
		)
	}
}
