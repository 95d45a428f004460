package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/services"
	"github.com/wildme/houston/internal/templates"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionHandler serves the interactive login flow. A successful login also
// mints a bearer token through the user's lazily created session client and
// stores it in a cookie, which is one of the gate's default lookup locations.
type SessionHandler struct {
	config  *config.Config
	users   *services.UserService
	clients *services.ClientService
	tokens  *services.TokenService
	metrics metrics.Recorder
}

func NewSessionHandler(
	cfg *config.Config,
	users *services.UserService,
	clients *services.ClientService,
	tokens *services.TokenService,
	m metrics.Recorder,
) *SessionHandler {
	return &SessionHandler{config: cfg, users: users, clients: clients, tokens: tokens, metrics: m}
}

// LoginPage handles GET /login.
func (h *SessionHandler) LoginPage(c *gin.Context) {
	templates.Render(c, http.StatusOK, "login.html", gin.H{
		"Redirect": safeRedirect(c.Query("redirect")),
	})
}

// Login handles POST /login.
func (h *SessionHandler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	redirect := safeRedirect(c.PostForm("redirect"))

	user, err := h.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		templates.Render(c, http.StatusUnauthorized, "login.html", gin.H{
			"Redirect": redirect,
			"Error":    "Invalid username or password.",
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.ID)
	if err := session.Save(); err != nil {
		log.Printf("[Session] Failed to save session for user %s: %v", user.ID, err)
		templates.Render(c, http.StatusInternalServerError, "error.html", gin.H{
			"Error":   "Server Error",
			"Message": "Could not establish a session. Please try again.",
		})
		return
	}

	client, err := h.clients.EnsureSessionClient(c.Request.Context(), user)
	if err != nil {
		log.Printf("[Session] Failed to ensure session client for user %s: %v", user.ID, err)
		templates.Render(c, http.StatusInternalServerError, "error.html", gin.H{
			"Error":   "Server Error",
			"Message": "Could not establish a session. Please try again.",
		})
		return
	}

	token, err := h.tokens.Issue(
		c.Request.Context(),
		client,
		user,
		client.DefaultScopes,
		services.GrantTypePassword,
		true,
	)
	if err != nil {
		log.Printf("[Session] Failed to issue session token for user %s: %v", user.ID, err)
		templates.Render(c, http.StatusInternalServerError, "error.html", gin.H{
			"Error":   "Server Error",
			"Message": "Could not establish a session. Please try again.",
		})
		return
	}

	c.SetCookie(
		"access_token",
		token.RawAccessToken,
		int(h.config.AccessTokenLifetime.Seconds()),
		"/",
		"",
		false,
		true,
	)

	if redirect == "" {
		redirect = "/"
	}
	c.Redirect(http.StatusFound, redirect)
}

// Logout handles POST /logout: the session cookie is cleared and the session
// token revoked so it dies immediately, not at expiry.
func (h *SessionHandler) Logout(c *gin.Context) {
	if raw, err := c.Cookie("access_token"); err == nil && raw != "" {
		if err := h.tokens.Revoke(c.Request.Context(), raw); err != nil {
			log.Printf("[Session] Failed to revoke session token on logout: %v", err)
		}
	}

	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.SetCookie("access_token", "", -1, "/", "", false, true)

	h.metrics.RecordLogout()
	c.Redirect(http.StatusFound, "/login")
}

// safeRedirect keeps post-login redirects on this host.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}
