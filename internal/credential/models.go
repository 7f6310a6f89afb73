package credential

import "time"

// Credential is the admin-scoped bearer credential for the telephony API.
// The supplier owns it exclusively; other modules only ever borrow the
// current access token string.
type Credential struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	AcquiredAt       time.Time `json:"acquired_at"`
}

// AccessUsable reports whether the access token is still valid at now,
// keeping skew as headroom so a token never expires mid-request.
func (c *Credential) AccessUsable(now time.Time, skew time.Duration) bool {
	return c.AccessToken != "" && now.Add(skew).Before(c.AccessExpiresAt)
}

// RefreshUsable reports whether the refresh token can still mint new access
// tokens.
func (c *Credential) RefreshUsable(now time.Time) bool {
	return c.RefreshToken != "" && now.Before(c.RefreshExpiresAt)
}
