package middleware

import (
	"github.com/wildme/houston/internal/models"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the authentication gate.
const (
	ContextUser    = "auth_user"
	ContextScopes  = "auth_scopes"
	ContextTokenID = "auth_token_id"
)

// Session keys for the interactive login flow.
const (
	SessionUserID = "user_id"
)

// CurrentUser returns the authenticated principal, or nil when the request
// carries no valid credentials.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GrantedScopes returns the scope set attached to the request's token.
func GrantedScopes(c *gin.Context) map[string]bool {
	v, ok := c.Get(ContextScopes)
	if !ok {
		return nil
	}
	scopes, ok := v.(map[string]bool)
	if !ok {
		return nil
	}
	return scopes
}

// IPMiddleware stores the client IP in the context for audit logging.
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("client_ip", c.ClientIP())
		c.Next()
	}
}

// ClientIPFrom returns the IP recorded by IPMiddleware, falling back to gin's
// own resolution.
func ClientIPFrom(c *gin.Context) string {
	if ip, ok := c.Get("client_ip"); ok {
		if s, ok := ip.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}
