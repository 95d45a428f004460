package services

import (
	"testing"
	"time"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword     = "correct-horse-battery"
	testClientSecret = "test-client-secret-value"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenLifetime: 1 * time.Hour,
		AuthCodeLifetime:    100 * time.Second,
		RecognizedScopes: []string{
			"users:read", "users:write", "encounters:read", "encounters:write",
			"auth:read", "auth:write", "admin:read", "admin:write",
		},
		DefaultClientScopes:  []string{"users:read", "encounters:read"},
		TokenLookupLocations: []string{config.TokenLocationForm, config.TokenLocationCookies},
		ConsentRequestTTL:    5 * time.Minute,
	}
}

func createTestUser(t *testing.T, s *store.Store, username string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(user))
	return user
}

func createTestClient(
	t *testing.T,
	s *store.Store,
	userID string,
	confidential bool,
) *models.OAuthClient {
	t.Helper()

	var secretHash string
	clientType := models.ClientTypePublic
	if confidential {
		hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
		require.NoError(t, err)
		secretHash = string(hash)
		clientType = models.ClientTypeConfidential
	}

	client := &models.OAuthClient{
		ClientID:      uuid.New().String(),
		SecretHash:    secretHash,
		ClientType:    clientType,
		ClientName:    "test client",
		DefaultScopes: "users:read encounters:read",
		RedirectURIs:  "https://app.example.org/callback",
		UserID:        userID,
	}
	require.NoError(t, s.CreateClient(client))
	return client
}

type testServices struct {
	store  *store.Store
	config *config.Config
	users  *UserService
	tokens *TokenService
	engine *GrantEngine
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	s := setupTestStore(t)
	cfg := testConfig()
	m := metrics.NewNoopMetrics()
	audit := NewAuditService(s, false, 0)
	users := NewUserService(s, m)
	tokens := NewTokenService(s, cfg, audit, m)
	engine := NewGrantEngine(s, cfg, users, tokens, audit, m)
	return &testServices{store: s, config: cfg, users: users, tokens: tokens, engine: engine}
}
