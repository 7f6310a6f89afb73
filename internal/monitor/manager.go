// Package monitor owns the monitoring session lifecycle: exactly one
// admin-scoped subscription per deployment, supervised across credential
// rotation, listener failures, and process restarts.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"callfence/internal/audit"
	"callfence/internal/xsi"
	dErrors "callfence/pkg/domain-errors"
)

// SessionState is the monitoring session's lifecycle state.
type SessionState string

const (
	SessionInactive SessionState = "inactive"
	SessionStarting SessionState = "starting"
	SessionActive   SessionState = "active"
	SessionDegraded SessionState = "degraded"
	SessionStopped  SessionState = "stopped"
)

// StreamListener is the supervised event stream subscription.
type StreamListener interface {
	Run(ctx context.Context) error
	State() xsi.State
	Dropped() int64
}

// EngineRunner is the supervised decision loop.
type EngineRunner interface {
	Run(ctx context.Context) error
}

// TokenChecker verifies a live admin credential before a session starts.
type TokenChecker interface {
	Token(ctx context.Context) (string, error)
}

// Status is the observable session snapshot, including the enforcement gap
// flag that must never be silently swallowed.
type Status struct {
	State          SessionState `json:"state"`
	ListenerState  string       `json:"listener_state"`
	DroppedEvents  int64        `json:"dropped_events"`
	EnforcementGap bool         `json:"enforcement_gap"`
	LastError      string       `json:"last_error,omitempty"`
}

// Manager is the singleton session state machine with injected
// dependencies. It supervises the listener and engine as one unit.
type Manager struct {
	listener StreamListener
	engine   EngineRunner
	tokens   TokenChecker
	auditor  *audit.Publisher
	logger   *slog.Logger
	grace    time.Duration

	mu      sync.Mutex
	state   SessionState
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	gap     bool
}

// NewManager constructs an inactive session manager.
func NewManager(listener StreamListener, engine EngineRunner, tokens TokenChecker, auditor *audit.Publisher, logger *slog.Logger, grace time.Duration) *Manager {
	return &Manager{
		listener: listener,
		engine:   engine,
		tokens:   tokens,
		auditor:  auditor,
		logger:   logger,
		grace:    grace,
		state:    SessionInactive,
	}
}

// Start brings the session up. It requires a non-expired admin credential;
// an expired one fails with credential_expired and requires
// re-authentication before retry.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case SessionStarting, SessionActive:
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "monitoring session already running")
	}
	// The session outlives the HTTP request that started it. cancel and
	// done are installed before the lock drops so a Stop arriving during
	// the credential check always has a handle on this session.
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.state = SessionStarting
	m.cancel = cancel
	m.done = done
	m.lastErr = nil
	m.gap = false
	m.mu.Unlock()

	if _, err := m.tokens.Token(ctx); err != nil {
		cancel()
		m.mu.Lock()
		if m.done == done && m.state == SessionStarting {
			m.state = SessionInactive
			m.lastErr = err
			m.gap = true
		}
		m.mu.Unlock()
		close(done)
		m.logger.ErrorContext(ctx, "monitoring start refused, enforcement gap open",
			"error", err,
		)
		return err
	}

	m.mu.Lock()
	if m.done != done || m.state != SessionStarting {
		// Stop won the race during the credential check; nothing launches.
		m.mu.Unlock()
		cancel()
		close(done)
		return dErrors.New(dErrors.CodeConflict, "monitoring session stopped before start completed")
	}
	m.mu.Unlock()

	m.emitAudit(ctx, audit.ActionSessionStarted, "")
	m.logger.InfoContext(ctx, "monitoring session starting")

	go m.supervise(runCtx, done)
	go m.watchSubscribed(runCtx)

	return nil
}

// supervise runs the listener and engine as one unit and records how they
// ended.
func (m *Manager) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.listener.Run(ctx) })
	g.Go(func() error { return m.engine.Run(ctx) })
	err := g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != done || m.state == SessionStopped {
		// Stop already recorded the outcome, or a newer session owns the
		// state; a late exit must not clobber it.
		return
	}
	if err == nil || errors.Is(err, context.Canceled) {
		m.state = SessionInactive
		return
	}
	m.state = SessionDegraded
	m.lastErr = err
	m.gap = true
	m.logger.Error("monitoring session degraded, enforcement gap open",
		"error", err,
	)
	m.emitAudit(context.Background(), audit.ActionSessionDegraded, err.Error())
}

// watchSubscribed flips Starting to Active once the listener reports a live
// subscription.
func (m *Manager) watchSubscribed(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.listener.State() != xsi.StateSubscribed {
				continue
			}
			m.mu.Lock()
			if m.state == SessionStarting {
				m.state = SessionActive
				m.logger.Info("monitoring session active")
			}
			m.mu.Unlock()
			return
		}
	}
}

// Stop tears the session down: no new events, in-flight decisions get the
// grace period, then the subscription is released.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != SessionActive && m.state != SessionStarting && m.state != SessionDegraded {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidInput, "monitoring session is not running")
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(m.grace):
			m.logger.WarnContext(ctx, "grace period elapsed before session drained")
		}
	}

	m.mu.Lock()
	if m.done != done {
		// A newer session replaced this one while the grace period ran.
		m.mu.Unlock()
		return nil
	}
	m.state = SessionStopped
	m.mu.Unlock()

	m.emitAudit(ctx, audit.ActionSessionStopped, "")
	m.logger.InfoContext(ctx, "monitoring session stopped")
	return nil
}

// AutoStart attempts to resume monitoring from a persisted credential on
// process boot. An expired credential leaves the session inactive with an
// explicit, observable enforcement gap until an admin re-authenticates.
func (m *Manager) AutoStart(ctx context.Context) {
	err := m.Start(ctx)
	if err == nil {
		m.logger.InfoContext(ctx, "monitoring session resumed from persisted credential")
		return
	}
	if dErrors.HasCode(err, dErrors.CodeCredentialExpired) {
		m.logger.ErrorContext(ctx, "persisted admin credential unusable; monitoring stays inactive until re-authentication",
			"error", err,
		)
		return
	}
	m.logger.ErrorContext(ctx, "monitoring auto-start failed", "error", err)
}

// Retry re-arms a degraded session, mirroring Start's requirements.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.state != SessionDegraded {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidInput, "monitoring session is not degraded")
	}
	m.state = SessionInactive
	m.mu.Unlock()
	return m.Start(ctx)
}

// Status returns the observable session snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{
		State:          m.state,
		ListenerState:  m.listener.State().String(),
		DroppedEvents:  m.listener.Dropped(),
		EnforcementGap: m.gap,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) emitAudit(ctx context.Context, action audit.Action, detail string) {
	if err := m.auditor.Emit(ctx, audit.Event{Action: action, Detail: detail}); err != nil {
		m.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}
