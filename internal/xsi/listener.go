package xsi

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "callfence/pkg/domain-errors"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callfence_listener_queue_depth",
		Help: "Events buffered between the stream listener and the decision engine",
	})
	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callfence_listener_dropped_events_total",
		Help: "Events dropped because the inbound queue was full",
	})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callfence_listener_reconnects_total",
		Help: "Stream reconnect attempts after a disconnect",
	})
)

// State tracks the listener's subscription lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Listener maintains one long-lived subscription to the call-event channel
// and feeds parsed events into a bounded queue. Delivery is best-effort: a
// full queue drops the oldest event rather than blocking the stream.
type Listener struct {
	eventsURL  string
	tokens     TokenSource
	logger     *slog.Logger
	httpClient *http.Client

	queue      chan CallEvent
	minBackoff time.Duration
	maxBackoff time.Duration

	state   atomic.Int32
	dropped atomic.Int64
}

// NewListener constructs a listener with a bounded inbound queue.
func NewListener(eventsURL string, tokens TokenSource, queueCapacity int, minBackoff, maxBackoff time.Duration, logger *slog.Logger) *Listener {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Listener{
		eventsURL: eventsURL,
		tokens:    tokens,
		logger:    logger,
		// The stream is intentionally long-lived; only dial is bounded.
		httpClient: &http.Client{Transport: http.DefaultTransport},
		queue:      make(chan CallEvent, queueCapacity),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Events exposes the inbound queue the decision engine consumes.
func (l *Listener) Events() <-chan CallEvent {
	return l.queue
}

// State returns the current subscription state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Dropped returns the total number of dropped events.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Run maintains the subscription until ctx is cancelled. Disconnects are
// retried with capped exponential backoff indefinitely; the only terminal
// failure is an unrefreshable credential, which surfaces to the session
// manager.
func (l *Listener) Run(ctx context.Context) error {
	defer l.state.Store(int32(StateDisconnected))

	backoff := l.minBackoff
	for {
		l.state.Store(int32(StateConnecting))
		err := l.stream(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if dErrors.HasCode(err, dErrors.CodeCredentialExpired) {
			return err
		}

		l.state.Store(int32(StateDisconnected))
		l.logger.WarnContext(ctx, "event stream disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)
		reconnects.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

// stream opens the channel and pumps events until it breaks.
func (l *Listener) stream(ctx context.Context) error {
	token, err := l.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.eventsURL, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "event channel unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		// Let the supplier decide whether this is refreshable; next
		// attempt picks up the refreshed token.
		if _, err := l.tokens.Refresh(ctx); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeUnavailable, "event channel rejected token, retrying with refreshed credential")
	default:
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("event channel returned %d", resp.StatusCode))
	}

	l.state.Store(int32(StateSubscribed))
	l.logger.InfoContext(ctx, "subscribed to call event channel")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := ParseEvent(line, time.Now())
		if err != nil {
			l.logger.WarnContext(ctx, "dropping malformed event", "error", err)
			continue
		}
		if event.Type == EventHeartbeat {
			continue
		}
		l.enqueue(ctx, *event)
	}
	if err := scanner.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "event stream read failed")
	}
	return dErrors.New(dErrors.CodeUnavailable, "event stream closed by peer")
}

// enqueue offers the event to the queue, dropping the oldest entry when
// full. Best-effort by design, not exactly-once.
func (l *Listener) enqueue(ctx context.Context, event CallEvent) {
	for {
		select {
		case l.queue <- event:
			queueDepth.Set(float64(len(l.queue)))
			return
		default:
		}
		select {
		case dropped := <-l.queue:
			l.dropped.Add(1)
			droppedEvents.Inc()
			l.logger.WarnContext(ctx, "inbound queue full, dropped oldest event",
				"dropped_call_id", dropped.CallID,
				"dropped_type", dropped.Type,
			)
		default:
		}
	}
}
