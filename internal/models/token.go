package models

import "time"

// OAuthToken is a bearer token pair (access + optional refresh). At most one
// live row exists per (client, user) pair; issuance rotates out the previous
// row in the same transaction.
type OAuthToken struct {
	ID        string `gorm:"primaryKey"`
	TokenType string `gorm:"not null;default:'Bearer'"`

	// SHA256 hashes of the raw values; raw values live only in memory
	AccessTokenHash  string `gorm:"uniqueIndex;not null"`
	RefreshTokenHash string `gorm:"index"` // empty when no refresh token was issued

	RawAccessToken  string `gorm:"-"`
	RawRefreshToken string `gorm:"-"`

	Scopes   string `gorm:"not null"` // space-separated
	ClientID string `gorm:"not null;index"`
	UserID   string `gorm:"not null;index"`

	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time
}

func (OAuthToken) TableName() string {
	return "oauth_tokens"
}

// IsExpired treats the exact expiry instant as expired (inclusive boundary).
func (t *OAuthToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// RefreshExpiresAt is issued_at + 2x the access token lifetime.
func (t *OAuthToken) RefreshExpiresAt() time.Time {
	return t.IssuedAt.Add(2 * t.ExpiresAt.Sub(t.IssuedAt))
}

// IsRefreshExpired reports whether the refresh window has passed.
func (t *OAuthToken) IsRefreshExpired() bool {
	return time.Now().After(t.RefreshExpiresAt())
}

// IsLive reports whether the access token is usable right now.
func (t *OAuthToken) IsLive() bool {
	return !t.Revoked && !t.IsExpired()
}

// HasRefreshToken reports whether a refresh token was issued with this pair.
func (t *OAuthToken) HasRefreshToken() bool {
	return t.RefreshTokenHash != ""
}

// GrantedScopeSet returns the granted scopes as a set for subset checks.
func (t *OAuthToken) GrantedScopeSet() map[string]bool {
	return ScopeSet(t.Scopes)
}
