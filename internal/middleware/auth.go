package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// tokenField is the form field and cookie name carrying the access token.
const tokenField = "access_token"

var errNoToken = errors.New("no bearer token in request")
var errHeaderDisabled = errors.New("authorization header lookup is disabled")

// Gate authenticates bearer tokens. Extraction walks the configured lookup
// locations in order; resolution always goes back to the store so revocation
// takes effect on the next request. All failures produce the same 401 body.
type Gate struct {
	config  *config.Config
	tokens  *services.TokenService
	metrics metrics.Recorder
}

func NewGate(cfg *config.Config, tokens *services.TokenService, m metrics.Recorder) *Gate {
	return &Gate{config: cfg, tokens: tokens, metrics: m}
}

// extractBearer finds the raw token value. When header lookup is disabled, a
// present Authorization header invalidates the whole request even if another
// location carries a valid token: silently ignoring supplied credentials
// would mask client misconfiguration.
func (g *Gate) extractBearer(c *gin.Context) (string, error) {
	if !g.config.HeaderLookupEnabled() {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
			return "", errHeaderDisabled
		}
	}

	for _, loc := range g.config.TokenLookupLocations {
		switch loc {
		case config.TokenLocationForm:
			if v := c.PostForm(tokenField); v != "" {
				return v, nil
			}
		case config.TokenLocationCookies:
			if v, err := c.Cookie(tokenField); err == nil && v != "" {
				return v, nil
			}
		case config.TokenLocationHeaders:
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
				return strings.TrimPrefix(h, bearerPrefix), nil
			}
		}
	}
	return "", errNoToken
}

// Authenticate resolves the request's bearer token to its principal and
// granted scopes. Used both by RequireScopes and by OPTIONS introspection.
func (g *Gate) Authenticate(c *gin.Context) (*models.User, map[string]bool, error) {
	raw, err := g.extractBearer(c)
	if err != nil {
		return nil, nil, err
	}

	token, user, err := g.tokens.Resolve(raw)
	if err != nil {
		return nil, nil, err
	}
	return user, token.GrantedScopeSet(), nil
}

// RequireScopes returns a middleware that admits only requests whose token
// grants every listed scope. The 401 body never distinguishes missing,
// expired, revoked, or under-scoped credentials.
func (g *Gate) RequireScopes(required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, granted, err := g.Authenticate(c)
		if err != nil {
			g.metrics.RecordBearerAuth("failure")
			unauthorized(c)
			return
		}

		if !models.ScopesSubset(granted, required) {
			g.metrics.RecordBearerAuth("failure")
			unauthorized(c)
			return
		}

		g.metrics.RecordBearerAuth("success")
		c.Set(ContextUser, user)
		c.Set(ContextScopes, granted)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status":  http.StatusUnauthorized,
		"message": "authentication required",
	})
}

// RequireSession guards the interactive HTML pages (login, consent). It
// redirects anonymous browsers to the login form with a return URL.
func RequireSession(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(SessionUserID).(string)
		if !ok || userID == "" {
			c.Redirect(http.StatusFound, "/login?redirect="+c.Request.URL.String())
			c.Abort()
			return
		}

		user, err := users.GetUserByID(userID)
		if err != nil || !user.IsActive {
			session.Delete(SessionUserID)
			_ = session.Save()
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}
