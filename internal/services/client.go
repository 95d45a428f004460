package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"
	"github.com/wildme/houston/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrInvalidClientType = errors.New("client_type must be public or confidential")
)

const sessionClientName = "session"

type ClientService struct {
	store  *store.Store
	config *config.Config
	audit  *AuditService
}

func NewClientService(s *store.Store, cfg *config.Config, audit *AuditService) *ClientService {
	return &ClientService{store: s, config: cfg, audit: audit}
}

type CreateClientRequest struct {
	ClientType   string
	ClientName   string
	Scopes       string // space-separated; empty means server defaults
	RedirectURIs string // comma-separated
	UserID       string // owning user
}

// ClientResponse carries the plaintext secret exactly once, at creation.
type ClientResponse struct {
	*models.OAuthClient
	ClientSecretPlain string
}

func (s *ClientService) CreateClient(
	ctx context.Context,
	req CreateClientRequest,
) (*ClientResponse, error) {
	clientType := strings.TrimSpace(req.ClientType)
	if clientType == "" {
		clientType = models.ClientTypeConfidential
	}
	if clientType != models.ClientTypePublic && clientType != models.ClientTypeConfidential {
		return nil, ErrInvalidClientType
	}

	scopes := strings.TrimSpace(req.Scopes)
	if scopes == "" {
		scopes = models.JoinScopes(s.config.DefaultClientScopes)
	}
	for _, scope := range models.SplitScopes(scopes) {
		if !s.config.IsRecognizedScope(scope) {
			return nil, ErrInvalidScope
		}
	}

	var secretPlain, secretHash string
	if clientType == models.ClientTypeConfidential {
		var err error
		secretPlain, err = util.CryptoRandomHex(40)
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secretPlain), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		secretHash = string(hash)
	}

	client := &models.OAuthClient{
		ClientID:      uuid.New().String(),
		SecretHash:    secretHash,
		ClientType:    clientType,
		ClientName:    strings.TrimSpace(req.ClientName),
		DefaultScopes: scopes,
		RedirectURIs:  strings.TrimSpace(req.RedirectURIs),
		UserID:        req.UserID,
	}

	if err := s.store.CreateClient(client); err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventClientCreated,
			Severity:     models.SeverityInfo,
			ActorUserID:  req.UserID,
			ResourceType: models.ResourceClient,
			ResourceID:   client.ClientID,
			Action:       "OAuth2 client registered",
			Details: models.AuditDetails{
				"client_type": client.ClientType,
				"scopes":      client.DefaultScopes,
			},
			Success: true,
		})
	}

	return &ClientResponse{OAuthClient: client, ClientSecretPlain: secretPlain}, nil
}

func (s *ClientService) GetClient(clientID string) (*models.OAuthClient, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// ListClientsByUser returns the clients owned by a user.
func (s *ClientService) ListClientsByUser(userID string) ([]models.OAuthClient, error) {
	return s.store.GetClientsByUserID(userID)
}

func (s *ClientService) DeleteClient(ctx context.Context, clientID, actorUserID string) error {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return ErrClientNotFound
	}

	if err := s.store.DeleteClients([]string{client.ClientID}); err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventClientDeleted,
			Severity:     models.SeverityInfo,
			ActorUserID:  actorUserID,
			ResourceType: models.ResourceClient,
			ResourceID:   clientID,
			Action:       "OAuth2 client deleted",
			Success:      true,
		})
	}
	return nil
}

// EnsureSessionClient returns the user's confidential session client,
// creating it lazily on first login. When more than one session client exists
// the state is stale: all are deleted (cascading their tokens) and a fresh
// one is created.
func (s *ClientService) EnsureSessionClient(
	ctx context.Context,
	user *models.User,
) (*models.OAuthClient, error) {
	clients, err := s.store.GetSessionClients(user.ID)
	if err != nil {
		return nil, err
	}

	if len(clients) == 1 {
		return &clients[0], nil
	}

	if len(clients) > 1 {
		log.Printf("[Auth] User %s has %d session clients, recreating", user.ID, len(clients))
		ids := make([]string, 0, len(clients))
		for _, c := range clients {
			ids = append(ids, c.ClientID)
		}
		if err := s.store.DeleteClients(ids); err != nil {
			return nil, err
		}
	}

	secretPlain, err := util.CryptoRandomHex(40)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secretPlain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	client := &models.OAuthClient{
		ClientID:      uuid.New().String(),
		SecretHash:    string(hash),
		ClientType:    models.ClientTypeConfidential,
		ClientName:    sessionClientName,
		DefaultScopes: models.JoinScopes(s.config.RecognizedScopes),
		UserID:        user.ID,
		IsSession:     true,
	}
	if err := s.store.CreateClient(client); err != nil {
		return nil, err
	}
	return client, nil
}
