package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "callfence/pkg/domain-errors"
)

func testBoundary(t *testing.T) Boundary {
	t.Helper()
	b, err := NewBoundary(10, 20, 100, 110)
	require.NoError(t, err)
	return b
}

func TestNewBoundary_RejectsInvertedRectangle(t *testing.T) {
	_, err := NewBoundary(20, 10, 100, 110)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewBoundary(10, 20, 110, 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNewBoundary_RejectsOutOfRangeCorners(t *testing.T) {
	_, err := NewBoundary(-91, 20, 100, 110)
	require.Error(t, err)

	_, err = NewBoundary(10, 20, 100, 181)
	require.Error(t, err)
}

func TestEvaluate_InsideAndOutside(t *testing.T) {
	b := testBoundary(t)

	tests := []struct {
		name string
		lat  float64
		lon  float64
		want Verdict
	}{
		{"strictly inside", 15, 105, VerdictAllowed},
		{"north of boundary", 25, 105, VerdictBlocked},
		{"south of boundary", 5, 105, VerdictBlocked},
		{"east of boundary", 15, 115, VerdictBlocked},
		{"west of boundary", 15, 95, VerdictBlocked},
		{"outside both axes", 25, 115, VerdictBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Evaluate(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_BoundaryEdgesAreInclusive(t *testing.T) {
	b := testBoundary(t)

	edges := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"south edge", 10, 105},
		{"north edge", 20, 105},
		{"west edge", 15, 100},
		{"east edge", 15, 110},
		{"southwest corner", 10, 100},
		{"northeast corner", 20, 110},
	}
	for _, tt := range edges {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Evaluate(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Equal(t, VerdictAllowed, got)
		})
	}
}

func TestEvaluate_OutOfRangeCoordinatesAreCallerErrors(t *testing.T) {
	b := testBoundary(t)

	cases := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"latitude below range", -90.5, 105},
		{"latitude above range", 90.5, 105},
		{"longitude below range", 15, -180.5},
		{"longitude above range", 15, 180.5},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Evaluate(tt.lat, tt.lon)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestEvaluate_RangeLimitsThemselvesAreValidInput(t *testing.T) {
	b, err := NewBoundary(-90, 90, -180, 180)
	require.NoError(t, err)

	got, err := b.Evaluate(-90, -180)
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, got)

	got, err = b.Evaluate(90, 180)
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, got)
}
