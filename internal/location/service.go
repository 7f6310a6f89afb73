package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callfence/internal/audit"
	"callfence/internal/geofence"
	dErrors "callfence/pkg/domain-errors"
	"callfence/pkg/platform/sentinel"
	"callfence/pkg/requestcontext"
)

// TransitionFunc observes verdict changes. The decision engine registers one
// to terminate active calls when a user moves out of bounds mid-call.
type TransitionFunc func(userID string, from, to geofence.Verdict)

// Service is the sole entry point for location reports. It validates,
// evaluates the geofence, persists last-write-wins, emits the audit record,
// and notifies transition subscribers.
type Service struct {
	store        Store
	boundary     geofence.Boundary
	maxReportAge time.Duration
	auditor      *audit.Publisher
	logger       *slog.Logger
	clock        func() time.Time
	subscribers  []TransitionFunc
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the location service.
func NewService(store Store, boundary geofence.Boundary, maxReportAge time.Duration, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		boundary:     boundary,
		maxReportAge: maxReportAge,
		auditor:      auditor,
		logger:       logger,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OnTransition registers a subscriber for verdict changes. Register before
// the inbound flows start; the slice is not guarded after that.
func (s *Service) OnTransition(fn TransitionFunc) {
	if fn != nil {
		s.subscribers = append(s.subscribers, fn)
	}
}

// RecordLocation updates the user's stored location unconditionally and
// recomputes the verdict. The returned status reflects exactly the
// just-recorded report, never an older one.
func (s *Service) RecordLocation(ctx context.Context, report Report) (*Status, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	verdict, err := s.boundary.Evaluate(report.Latitude, report.Longitude)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	reportedAt := report.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = now
	}

	var previous geofence.Verdict
	if prev, findErr := s.store.Find(ctx, report.UserID); findErr == nil {
		previous = prev.Verdict
	}

	record := &Record{
		UserID:     report.UserID,
		Email:      report.Email,
		Latitude:   report.Latitude,
		Longitude:  report.Longitude,
		Verdict:    verdict,
		ReportedAt: reportedAt,
		RecordedAt: now,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store location record")
	}

	reason := audit.ReasonInBounds
	if verdict == geofence.VerdictBlocked {
		reason = audit.ReasonOutOfBounds
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		UserID:    report.UserID,
		Action:    audit.ActionLocationRecorded,
		Decision:  string(verdict),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed for location report",
			"user_id", report.UserID,
			"error", err,
		)
	}

	if previous != "" && previous != verdict {
		s.logger.InfoContext(ctx, "verdict transition",
			"user_id", report.UserID,
			"from", previous,
			"to", verdict,
		)
		for _, fn := range s.subscribers {
			fn(report.UserID, previous, verdict)
		}
	}

	return &Status{
		Verdict:    verdict,
		ReportedAt: reportedAt,
		RecordedAt: now,
	}, nil
}

// CurrentVerdict returns the user's verdict, flagging reports older than the
// authoritative window as stale. Absence of data is not_found, which callers
// must treat as unknown rather than blocked.
func (s *Service) CurrentVerdict(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}

	record, err := s.store.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no location on file")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read location record")
	}

	stale := s.maxReportAge > 0 && s.clock().Sub(record.RecordedAt) > s.maxReportAge
	return &Status{
		Verdict:    record.Verdict,
		Stale:      stale,
		ReportedAt: record.ReportedAt,
		RecordedAt: record.RecordedAt,
	}, nil
}
