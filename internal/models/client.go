package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Client type constants (RFC 6749 §2.1)
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// OAuthClient is a registered client application. Confidential clients must
// authenticate with their secret for the authorization_code and refresh_token
// grants; public clients never present a secret.
type OAuthClient struct {
	ClientID      string `gorm:"primaryKey"`
	SecretHash    string // bcrypt hash; empty for public clients
	ClientType    string `gorm:"not null;default:'confidential'"`
	ClientName    string
	DefaultScopes string `gorm:"not null"`                     // space-separated scopes
	RedirectURIs  string `gorm:"type:text"`                    // comma-separated redirect URIs
	UserID        string `gorm:"not null;index"`               // owning user
	IsSession     bool   `gorm:"not null;default:false;index"` // lazily created interactive session client
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

// CheckOwner reports whether u owns this client registration.
func (c *OAuthClient) CheckOwner(u *User) bool {
	return u != nil && c.UserID == u.ID
}

// IsConfidential reports whether the client must authenticate with a secret.
func (c *OAuthClient) IsConfidential() bool {
	return c.ClientType == ClientTypeConfidential
}

// VerifySecret checks a plaintext secret against the stored bcrypt hash.
func (c *OAuthClient) VerifySecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// AllowsRedirectURI reports whether uri exactly matches a registered URI.
func (c *OAuthClient) AllowsRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range strings.Split(c.RedirectURIs, ",") {
		if strings.TrimSpace(registered) == uri {
			return true
		}
	}
	return false
}

// DefaultScopeSet returns the client's default scopes as a set.
func (c *OAuthClient) DefaultScopeSet() map[string]bool {
	return ScopeSet(c.DefaultScopes)
}
