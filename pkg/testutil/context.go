package testutil

import (
	"net/http"

	"callfence/pkg/requestcontext"
)

// AsUser stamps the request with an authenticated user identity, simulating
// what the auth middleware does for valid session tokens.
func AsUser(req *http.Request, userID string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

// AsAdmin stamps the request with an authorized admin identity.
func AsAdmin(req *http.Request, userID string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithAdmin(ctx, true)
	return req.WithContext(ctx)
}

// WithRequestID stamps the request with a correlation id.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}
