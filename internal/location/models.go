package location

import (
	"time"

	"callfence/internal/geofence"
	dErrors "callfence/pkg/domain-errors"
)

// Report is an inbound device geolocation reading. Transport-agnostic: the
// HTTP handler, a websocket bridge, or a test can all submit one.
type Report struct {
	UserID     string
	Email      string
	Latitude   float64
	Longitude  float64
	ReportedAt time.Time
}

// Validate rejects structurally bad reports before any state mutation.
// Coordinate range checks happen in the geofence evaluator so the rules
// live in one place.
func (r *Report) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	return nil
}

// Record is the latest known location and verdict for one user. Records are
// created on first report and overwritten thereafter, never deleted.
type Record struct {
	UserID     string
	Email      string
	Latitude   float64
	Longitude  float64
	Verdict    geofence.Verdict
	ReportedAt time.Time
	RecordedAt time.Time
	FirstSeen  time.Time
}

// Status is what callers get when asking about a user: the verdict plus
// whether the backing report has aged out of its authoritative window.
type Status struct {
	Verdict    geofence.Verdict
	Stale      bool
	ReportedAt time.Time
	RecordedAt time.Time
}
