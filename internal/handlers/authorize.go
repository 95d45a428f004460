package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"
	"github.com/wildme/houston/internal/templates"

	"github.com/gin-gonic/gin"
)

// AuthorizeHandler serves the interactive authorize endpoint: GET renders the
// consent page, POST resolves the user's decision.
type AuthorizeHandler struct {
	authz *services.AuthorizationService
}

func NewAuthorizeHandler(authz *services.AuthorizationService) *AuthorizeHandler {
	return &AuthorizeHandler{authz: authz}
}

// Authorize handles GET /auth/oauth2/authorize. The session middleware
// guarantees a logged-in user before this runs.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	user := middleware.CurrentUser(c)

	req := services.AuthorizeRequest{
		ResponseType: c.Query("response_type"),
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		Scope:        c.Query("scope"),
		State:        c.Query("state"),
	}

	client, scopes, err := h.authz.ValidateAuthorizeRequest(req)
	if err != nil {
		h.authorizeError(c, req, err)
		return
	}

	consent, err := h.authz.BeginConsent(c.Request.Context(), user, client, req, scopes)
	if err != nil {
		templates.Render(c, http.StatusInternalServerError, "error.html", gin.H{
			"Error":   "Server Error",
			"Message": "Could not start the authorization request. Please try again.",
		})
		return
	}

	templates.Render(c, http.StatusOK, "consent.html", gin.H{
		"ClientName": client.ClientName,
		"Username":   user.Username,
		"Scopes":     models.SplitScopes(scopes),
		"ConsentID":  consent.ID,
	})
}

// Decide handles POST /auth/oauth2/authorize with confirm=yes|no.
func (h *AuthorizeHandler) Decide(c *gin.Context) {
	user := middleware.CurrentUser(c)
	consentID := c.PostForm("consent_id")
	approved := c.PostForm("confirm") == "yes"

	redirect, err := h.authz.FinalizeConsent(c.Request.Context(), consentID, user, approved)
	if err != nil {
		if errors.Is(err, services.ErrConsentExpired) {
			templates.Render(c, http.StatusBadRequest, "error.html", gin.H{
				"Error":   "Request Expired",
				"Message": "The authorization request expired. Return to the application and try again.",
			})
			return
		}
		templates.Render(c, http.StatusInternalServerError, "error.html", gin.H{
			"Error":   "Server Error",
			"Message": "Could not complete the authorization request.",
		})
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

// authorizeError routes a validation failure. Before the client and redirect
// URI are proven valid the error renders in place; after that, RFC 6749
// §4.1.2.1 sends it back to the client via the redirect URI.
func (h *AuthorizeHandler) authorizeError(
	c *gin.Context,
	req services.AuthorizeRequest,
	err error,
) {
	var code string
	switch {
	case errors.Is(err, services.ErrUnsupportedResponseType):
		code = "unsupported_response_type"
	case errors.Is(err, services.ErrInvalidScope):
		code = "invalid_scope"
	}

	if code != "" {
		params := url.Values{"error": {code}}
		if req.State != "" {
			params.Set("state", req.State)
		}
		sep := "?"
		if u, perr := url.Parse(req.RedirectURI); perr == nil && u.RawQuery != "" {
			sep = "&"
		}
		c.Redirect(http.StatusFound, req.RedirectURI+sep+params.Encode())
		return
	}

	templates.Render(c, http.StatusBadRequest, "error.html", gin.H{
		"Error":   "Invalid Request",
		"Message": "The authorization request is malformed or names an unknown client.",
	})
}
