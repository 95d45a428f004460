package models

import "time"

// AuthorizationCode is a short-lived, single-use artifact for the
// authorization_code grant. The record is deleted on exchange; two concurrent
// exchanges of the same code yield exactly one winner.
type AuthorizationCode struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// SHA256(plainCode); the plaintext is only ever sent in the redirect
	CodeHash string `gorm:"uniqueIndex;not null"`

	ClientID    string `gorm:"not null;index"`
	UserID      string `gorm:"not null;index"`
	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"` // frozen at consent time

	ExpiresAt time.Time
	CreatedAt time.Time
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}

// IsExpired treats the exact expiry instant as expired.
func (a *AuthorizationCode) IsExpired() bool {
	return !time.Now().Before(a.ExpiresAt)
}
