package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "callfence/pkg/domain-errors"
)

// Refresher exchanges a refresh token for a fresh credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// OAuthRefresher performs the refresh_token grant against the platform's
// token endpoint. Login flows that mint the initial credential live outside
// this service; only refresh is needed here.
type OAuthRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	clock        func() time.Time
}

// NewOAuthRefresher constructs a refresher for the given token endpoint.
func NewOAuthRefresher(tokenURL, clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		clock:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		// The platform no longer honors this refresh token.
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "refresh token rejected by token endpoint")
	default:
		return nil, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "token endpoint returned no access token")
	}

	now := r.clock()
	cred := &Credential{
		AccessToken:     body.AccessToken,
		AccessExpiresAt: now.Add(time.Duration(body.ExpiresIn) * time.Second),
		RefreshToken:    body.RefreshToken,
		AcquiredAt:      now,
	}
	if body.RefreshTokenExpiresIn > 0 {
		cred.RefreshExpiresAt = now.Add(time.Duration(body.RefreshTokenExpiresIn) * time.Second)
	}
	if cred.RefreshToken == "" {
		// Some platforms keep the old refresh token valid instead of rotating.
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}
