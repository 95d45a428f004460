package handlers

import (
	"errors"
	"net/http"

	"github.com/wildme/houston/internal/services"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves the token and revocation endpoints.
type TokenHandler struct {
	engine *services.GrantEngine
	tokens *services.TokenService
}

func NewTokenHandler(engine *services.GrantEngine, tokens *services.TokenService) *TokenHandler {
	return &TokenHandler{engine: engine, tokens: tokens}
}

// clientAuth pulls client credentials from the form body or, preferentially,
// from HTTP Basic auth (RFC 6749 §2.3.1).
func clientAuth(c *gin.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// Token handles POST /auth/oauth2/token for every grant type.
func (h *TokenHandler) Token(c *gin.Context) {
	clientID, clientSecret := clientAuth(c)

	req := services.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     c.PostForm("username"),
		Password:     c.PostForm("password"),
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		RefreshToken: c.PostForm("refresh_token"),
		Scope:        c.PostForm("scope"),
	}

	issued, err := h.engine.Exchange(c.Request.Context(), req)
	if err != nil {
		writeGrantError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, issued)
}

// Revoke handles POST /auth/oauth2/revoke (RFC 7009). Revoking a token the
// server does not know succeeds: the caller's goal, the token being unusable,
// is already met.
func (h *TokenHandler) Revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token parameter is required",
		})
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "failed to revoke token",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// writeGrantError serializes a grant failure per RFC 6749 §5.2. Descriptions
// stay generic; the error code already says everything a legitimate client
// needs.
func writeGrantError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		c.Header("WWW-Authenticate", `Basic realm="houston"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		})
	case errors.Is(err, services.ErrInvalidGrant):
		// Failed credential, code, or refresh-token validation is an
		// authentication failure, answered 401 like invalid_client.
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_grant",
			"error_description": "the provided grant is invalid, expired, or revoked",
		})
	case errors.Is(err, services.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_scope",
			"error_description": "the requested scope exceeds what the client may be granted",
		})
	case errors.Is(err, services.ErrUnsupportedGrantType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "supported grant types: password, authorization_code, refresh_token, client_credentials",
		})
	case errors.Is(err, services.ErrUnauthorizedClient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unauthorized_client",
			"error_description": "the client may not use this grant type",
		})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "a required parameter is missing or malformed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "token issuance failed",
		})
	}
}
