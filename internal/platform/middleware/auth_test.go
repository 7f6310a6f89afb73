package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfence/internal/auth/jwttoken"
	"callfence/pkg/requestcontext"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	tokens := jwttoken.NewService("test-key", "callfence")

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = requestcontext.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAuth(tokens, testLogger())(next)

	t.Run("valid token passes and sets user context", func(t *testing.T) {
		token, err := tokens.GenerateSessionToken("user-1", false, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/location/verdict", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-1", gotUserID)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/location/verdict", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/location/verdict", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	tokens := jwttoken.NewService("test-key", "callfence")
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAdmin(tokens, "admin-1", testLogger())(next)

	serve := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/monitoring/start", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("configured admin passes", func(t *testing.T) {
		token, err := tokens.GenerateSessionToken("admin-1", true, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, serve(token).Code)
	})

	t.Run("non-admin claim is rejected", func(t *testing.T) {
		token, err := tokens.GenerateSessionToken("admin-1", false, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(token).Code)
	})

	t.Run("admin claim with wrong identity is rejected", func(t *testing.T) {
		token, err := tokens.GenerateSessionToken("someone-else", true, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(token).Code)
	})

	t.Run("any admin passes when no identity is pinned", func(t *testing.T) {
		open := RequireAdmin(tokens, "", testLogger())(next)
		token, err := tokens.GenerateSessionToken("someone-else", true, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/monitoring/start", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
