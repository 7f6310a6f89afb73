// Package geofence decides whether a reported location falls inside the
// configured boundary rectangle. Evaluation is pure: no I/O, no clock, no
// state. A single reported point is authoritative until superseded.
package geofence

import (
	"fmt"

	dErrors "callfence/pkg/domain-errors"
)

// Verdict is the allowed/blocked decision attached to a location.
type Verdict string

const (
	VerdictAllowed Verdict = "allowed"
	VerdictBlocked Verdict = "blocked"
)

// Boundary is an immutable rectangle. Comparisons are inclusive on all four
// edges; a point exactly on a boundary line is allowed. No anti-meridian
// handling: LonMin must not exceed LonMax.
type Boundary struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// NewBoundary validates the rectangle once at startup so Evaluate never has
// to re-check it.
func NewBoundary(latMin, latMax, lonMin, lonMax float64) (Boundary, error) {
	b := Boundary{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}
	if err := validateCoordinates(latMin, lonMin); err != nil {
		return Boundary{}, err
	}
	if err := validateCoordinates(latMax, lonMax); err != nil {
		return Boundary{}, err
	}
	if latMin > latMax {
		return Boundary{}, dErrors.New(dErrors.CodeInvalidInput, "boundary lat_min exceeds lat_max")
	}
	if lonMin > lonMax {
		return Boundary{}, dErrors.New(dErrors.CodeInvalidInput, "boundary lon_min exceeds lon_max")
	}
	return b, nil
}

// Evaluate returns the verdict for a coordinate pair. Out-of-range
// coordinates are a caller error, not a geofence failure.
func (b Boundary) Evaluate(lat, lon float64) (Verdict, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return "", err
	}
	if b.LatMin <= lat && lat <= b.LatMax && b.LonMin <= lon && lon <= b.LonMax {
		return VerdictAllowed, nil
	}
	return VerdictBlocked, nil
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("latitude %v out of range [-90,90]", lat))
	}
	if lon < -180 || lon > 180 {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("longitude %v out of range [-180,180]", lon))
	}
	return nil
}
