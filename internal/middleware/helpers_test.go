package middleware

import (
	"context"
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
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gateFixture struct {
	store    *store.Store
	config   *config.Config
	tokens   *services.TokenService
	gate     *Gate
	enforcer *RuleEnforcer
	user     *models.User
	client   *models.OAuthClient
}

func newGateFixture(t *testing.T, lookupLocations ...string) *gateFixture {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	if len(lookupLocations) == 0 {
		lookupLocations = []string{config.TokenLocationForm, config.TokenLocationCookies}
	}
	cfg := &config.Config{
		AccessTokenLifetime:  time.Hour,
		AuthCodeLifetime:     100 * time.Second,
		RecognizedScopes:     []string{"users:read", "users:write", "auth:read", "auth:write"},
		TokenLookupLocations: lookupLocations,
	}

	m := metrics.NewNoopMetrics()
	tokens := services.NewTokenService(s, cfg, nil, m)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		Email:        "alice@example.org",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(user))

	client := &models.OAuthClient{
		ClientID:      uuid.New().String(),
		ClientName:    "field-app",
		ClientType:    models.ClientTypeConfidential,
		UserID:        user.ID,
		DefaultScopes: "users:read",
	}
	require.NoError(t, s.CreateClient(client))

	return &gateFixture{
		store:    s,
		config:   cfg,
		tokens:   tokens,
		gate:     NewGate(cfg, tokens, m),
		enforcer: NewRuleEnforcer(cfg, m, nil),
		user:     user,
		client:   client,
	}
}

// issueToken mints a token for the fixture user with the given scopes and
// returns the raw access token value.
func (f *gateFixture) issueToken(t *testing.T, scopes string) string {
	t.Helper()
	token, err := f.tokens.Issue(
		context.Background(), f.client, f.user, scopes, "password", false)
	require.NoError(t, err)
	return token.RawAccessToken
}

// tokenRequestWithForm builds a form-encoded request from arbitrary fields.
func tokenRequestWithForm(method, target string, fields map[string]string) *http.Request {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// tokenRequest builds a request carrying the raw token in the given location.
func tokenRequest(method, target, location, raw string) *http.Request {
	var req *http.Request
	if location == "form" {
		form := url.Values{"access_token": {raw}}
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	switch location {
	case "cookie":
		req.AddCookie(&http.Cookie{Name: "access_token", Value: raw})
	case "header":
		req.Header.Set("Authorization", "Bearer "+raw)
	}
	return req
}
