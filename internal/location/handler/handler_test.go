package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfence/internal/audit"
	"callfence/internal/geofence"
	"callfence/internal/location"
	"callfence/pkg/testutil"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	boundary, err := geofence.NewBoundary(10, 20, 100, 110)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), logger, 0)
	service := location.NewService(location.NewInMemoryStore(), boundary, time.Minute, auditor, logger)

	r := chi.NewRouter()
	New(service, logger).Register(r)
	return r
}

func doAs(t *testing.T, router chi.Router, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewRequestWithBody(t, method, path, body)
	if userID != "" {
		req = testutil.AsUser(req, userID)
	}
	return testutil.DoRequest(router, req)
}

func TestHandleReport(t *testing.T) {
	t.Run("inside boundary", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "user-1", http.MethodPost, "/location/report", `{"latitude": 15, "longitude": 105}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "allowed", resp.Verdict)
		assert.Empty(t, resp.Message)
	})

	t.Run("outside boundary is 403 but recorded", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "user-1", http.MethodPost, "/location/report", `{"latitude": 25, "longitude": 105}`)
		require.Equal(t, http.StatusForbidden, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "blocked", resp.Verdict)
		assert.Equal(t, "location outside allowed boundary", resp.Message)

		// The verdict is still on file.
		rec = doAs(t, router, "user-1", http.MethodGet, "/location/verdict", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "blocked", resp.Verdict)
	})

	t.Run("malformed body", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "user-1", http.MethodPost, "/location/report", `{"latitude":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of range coordinates", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "user-1", http.MethodPost, "/location/report", `{"latitude": 91, "longitude": 105}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no authenticated user", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "", http.MethodPost, "/location/report", `{"latitude": 15, "longitude": 105}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("client timestamp is preserved", func(t *testing.T) {
		router := newTestRouter(t)
		reported := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		rec := doAs(t, router, "user-1", http.MethodPost, "/location/report",
			`{"latitude": 15, "longitude": 105, "timestamp": `+strconv.FormatInt(reported.Unix(), 10)+`}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, reported.Format(time.RFC3339), resp.ReportedAt)
	})
}

func TestHandleVerdict(t *testing.T) {
	t.Run("no location on file", func(t *testing.T) {
		router := newTestRouter(t)

		rec := doAs(t, router, "user-1", http.MethodGet, "/location/verdict", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stale report is flagged", func(t *testing.T) {
		boundary, err := geofence.NewBoundary(10, 20, 100, 110)
		require.NoError(t, err)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		auditor := audit.NewPublisher(audit.NewInMemoryStore(), logger, 0)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		current := now
		service := location.NewService(location.NewInMemoryStore(), boundary, time.Minute, auditor, logger,
			location.WithClock(func() time.Time { return current }))

		_, err = service.RecordLocation(context.Background(), location.Report{UserID: "user-1", Latitude: 15, Longitude: 105})
		require.NoError(t, err)
		current = now.Add(2 * time.Minute)

		r := chi.NewRouter()
		New(service, logger).Register(r)

		rec := doAs(t, r, "user-1", http.MethodGet, "/location/verdict", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "allowed", resp.Verdict)
		assert.True(t, resp.Stale)
	})
}
