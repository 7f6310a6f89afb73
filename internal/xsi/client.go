package xsi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	dErrors "callfence/pkg/domain-errors"
)

// TokenSource supplies a currently-valid bearer token; the client re-fetches
// it before each outbound call and forces a refresh after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client issues control actions against the telephony API. Reject and
// terminate are idempotent from the caller's perspective: acting on an
// already-ended call is a quiet no-op.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a control API client.
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// RejectCall declines an offered call before it is answered.
func (c *Client) RejectCall(ctx context.Context, userID, callID string) error {
	url := fmt.Sprintf("%s/user/%s/calls/%s/decline", c.baseURL, userID, callID)
	return c.do(ctx, http.MethodPut, url)
}

// TerminateCall releases an active call.
func (c *Client) TerminateCall(ctx context.Context, userID, callID string) error {
	url := fmt.Sprintf("%s/user/%s/calls/%s", c.baseURL, userID, callID)
	return c.do(ctx, http.MethodDelete, url)
}

// do performs the request with the current token, retrying exactly once with
// a refreshed credential on 401.
func (c *Client) do(ctx context.Context, method, url string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	status, err := c.attempt(ctx, method, url, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return err
		}
		status, err = c.attempt(ctx, method, url, token)
		if err != nil {
			return err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusConflict:
		// Call already ended; enforcement outcome is what we wanted.
		c.logger.InfoContext(ctx, "control action on ended call, treating as no-op",
			"method", method,
			"url", url,
			"status", status,
		)
		return nil
	case status == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeCredentialExpired, "control API rejected refreshed credential")
	default:
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("control API returned %d", status))
	}
}

func (c *Client) attempt(ctx context.Context, method, url, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build control request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "control API unreachable")
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
