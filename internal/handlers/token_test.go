package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"
	"github.com/wildme/houston/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	fixturePassword = "correct-horse-battery"
	fixtureSecret   = "client-secret-value"
)

type tokenFixture struct {
	store  *store.Store
	config *config.Config
	tokens *services.TokenService
	router *gin.Engine
	user   *models.User
	client *models.OAuthClient
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		AccessTokenLifetime: time.Hour,
		AuthCodeLifetime:    100 * time.Second,
		RecognizedScopes:    []string{"users:read", "users:write", "encounters:read"},
		DefaultClientScopes: []string{"users:read"},
		TokenLookupLocations: []string{
			config.TokenLocationForm, config.TokenLocationCookies,
		},
	}

	m := metrics.NewNoopMetrics()
	users := services.NewUserService(s, m)
	tokens := services.NewTokenService(s, cfg, nil, m)
	engine := services.NewGrantEngine(s, cfg, users, tokens, nil, m)

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(fixturePassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		Email:        "alice@example.org",
		PasswordHash: string(passwordHash),
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(user))

	secretHash, err := bcrypt.GenerateFromPassword([]byte(fixtureSecret), bcrypt.MinCost)
	require.NoError(t, err)
	client := &models.OAuthClient{
		ClientID:      uuid.New().String(),
		ClientName:    "field-app",
		ClientType:    models.ClientTypeConfidential,
		SecretHash:    string(secretHash),
		UserID:        user.ID,
		DefaultScopes: "users:read encounters:read",
		RedirectURIs:  "https://app.example.org/callback",
	}
	require.NoError(t, s.CreateClient(client))

	handler := NewTokenHandler(engine, tokens)
	router := gin.New()
	router.POST("/auth/oauth2/token", handler.Token)
	router.POST("/auth/oauth2/revoke", handler.Revoke)

	return &tokenFixture{store: s, config: cfg, tokens: tokens, router: router, user: user, client: client}
}

func (f *tokenFixture) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTokenEndpoint_PasswordGrant(t *testing.T) {
	f := newTokenFixture(t)

	w := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {f.client.ClientID},
		"username":   {"alice"},
		"password":   {fixturePassword},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))

	body := decodeJSON(t, w)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.InDelta(t, 3600, body["expires_in"], 2)
}

func TestTokenEndpoint_BasicAuthClientCredentials(t *testing.T) {
	f := newTokenFixture(t)

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/oauth2/token",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(f.client.ClientID, fixtureSecret)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.NotEmpty(t, body["access_token"])
	// Client credentials tokens carry no refresh token.
	assert.NotContains(t, body, "refresh_token")
}

func TestTokenEndpoint_InvalidClientAuthChallenge(t *testing.T) {
	f := newTokenFixture(t)

	w := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {f.client.ClientID},
		"client_secret": {"wrong"},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="houston"`, w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "invalid_client", decodeJSON(t, w)["error"])
}

func TestTokenEndpoint_BadCredentialsAreGeneric(t *testing.T) {
	f := newTokenFixture(t)

	// Wrong password and unknown user produce the same error body.
	wrong := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {f.client.ClientID},
		"username":   {"alice"},
		"password":   {"wrong"},
	})
	unknown := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {f.client.ClientID},
		"username":   {"nobody"},
		"password":   {fixturePassword},
	})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "invalid_grant", decodeJSON(t, wrong)["error"])
}

func TestTokenEndpoint_UnsupportedGrantType(t *testing.T) {
	f := newTokenFixture(t)

	w := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"device_code"},
		"client_id":  {f.client.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", decodeJSON(t, w)["error"])

	w = f.post(t, "/auth/oauth2/token", url.Values{
		"client_id": {f.client.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, w)["error"])
}

func TestTokenEndpoint_RefreshRotation(t *testing.T) {
	f := newTokenFixture(t)

	first := decodeJSON(t, f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {f.client.ClientID},
		"username":   {"alice"},
		"password":   {fixturePassword},
	}))

	w := f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {f.client.ClientID},
		"client_secret": {fixtureSecret},
		"refresh_token": {first["refresh_token"].(string)},
	})
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeJSON(t, w)
	assert.NotEqual(t, first["access_token"], second["access_token"])

	// The superseded refresh token is dead.
	w = f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {f.client.ClientID},
		"client_secret": {fixtureSecret},
		"refresh_token": {first["refresh_token"].(string)},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_grant", decodeJSON(t, w)["error"])
}

func TestRevokeEndpoint(t *testing.T) {
	f := newTokenFixture(t)

	issued := decodeJSON(t, f.post(t, "/auth/oauth2/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {f.client.ClientID},
		"username":   {"alice"},
		"password":   {fixturePassword},
	}))

	t.Run("revokes a live token", func(t *testing.T) {
		w := f.post(t, "/auth/oauth2/revoke", url.Values{
			"token": {issued["access_token"].(string)},
		})
		assert.Equal(t, http.StatusOK, w.Code)

		_, _, err := f.tokens.Resolve(issued["access_token"].(string))
		assert.Error(t, err)
	})

	t.Run("unknown token still succeeds", func(t *testing.T) {
		w := f.post(t, "/auth/oauth2/revoke", url.Values{"token": {"never-issued"}})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token parameter", func(t *testing.T) {
		w := f.post(t, "/auth/oauth2/revoke", url.Values{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decodeJSON(t, w)["error"])
	})
}
