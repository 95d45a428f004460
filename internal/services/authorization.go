package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wildme/houston/internal/cache"
	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"
	"github.com/wildme/houston/internal/util"

	"github.com/google/uuid"
)

// Response types accepted by the authorize endpoint (RFC 6749 §3.1.1).
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// authCodeBytes sizes raw authorization codes (hex-encoded on the wire).
const authCodeBytes = 24

// AuthorizeRequest is the parsed query of GET /auth/oauth2/authorize.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
}

// ConsentRequest is a pending authorization awaiting the user's yes/no. It
// lives in the cache between the GET that renders the consent page and the
// POST that resolves it.
type ConsentRequest struct {
	ID           string    `json:"id"`
	ResponseType string    `json:"response_type"`
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	RedirectURI  string    `json:"redirect_uri"`
	Scopes       string    `json:"scopes"`
	State        string    `json:"state"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthorizationService drives the interactive authorize endpoint: request
// validation, pending consent storage, and the final code or implicit-token
// redirect.
type AuthorizationService struct {
	store    *store.Store
	config   *config.Config
	consents cache.Cache[ConsentRequest]
	grants   *GrantEngine
	audit    *AuditService
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	consents cache.Cache[ConsentRequest],
	grants *GrantEngine,
	audit *AuditService,
) *AuthorizationService {
	return &AuthorizationService{
		store:    s,
		config:   cfg,
		consents: consents,
		grants:   grants,
		audit:    audit,
	}
}

// ValidateAuthorizeRequest checks an incoming authorize request before any
// consent UI is shown. The redirect URI is validated against the client's
// registration before anything is ever redirected to it.
func (s *AuthorizationService) ValidateAuthorizeRequest(
	req AuthorizeRequest,
) (*models.OAuthClient, string, error) {
	// Client and redirect URI come first: until both check out, no error may
	// be delivered by redirect (RFC 6749 §4.1.2.1).
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, "", ErrInvalidRequest
	}

	client, err := s.store.GetClient(req.ClientID)
	if err != nil {
		return nil, "", ErrInvalidClient
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, "", ErrInvalidRedirectURI
	}

	if req.ResponseType != ResponseTypeCode && req.ResponseType != ResponseTypeToken {
		return client, "", ErrUnsupportedResponseType
	}

	scopes := strings.TrimSpace(req.Scope)
	if scopes == "" {
		scopes = client.DefaultScopes
	} else {
		granted := client.DefaultScopeSet()
		requested := models.SplitScopes(scopes)
		for _, scope := range requested {
			if !s.config.IsRecognizedScope(scope) {
				return client, "", ErrInvalidScope
			}
		}
		if !models.ScopesSubset(granted, requested) {
			return client, "", ErrInvalidScope
		}
	}

	return client, scopes, nil
}

// BeginConsent stores a pending consent request and returns it for rendering.
func (s *AuthorizationService) BeginConsent(
	ctx context.Context,
	user *models.User,
	client *models.OAuthClient,
	req AuthorizeRequest,
	scopes string,
) (*ConsentRequest, error) {
	consent := ConsentRequest{
		ID:           uuid.New().String(),
		ResponseType: req.ResponseType,
		ClientID:     client.ClientID,
		ClientName:   client.ClientName,
		RedirectURI:  req.RedirectURI,
		Scopes:       scopes,
		State:        req.State,
		UserID:       user.ID,
		CreatedAt:    time.Now(),
	}
	if err := s.consents.Set(ctx, consent.ID, consent, s.config.ConsentRequestTTL); err != nil {
		return nil, fmt.Errorf("failed to store consent request: %w", err)
	}
	return &consent, nil
}

// GetConsent loads a pending consent request for the user. Expired or foreign
// requests surface as ErrConsentExpired.
func (s *AuthorizationService) GetConsent(
	ctx context.Context,
	id string,
	user *models.User,
) (*ConsentRequest, error) {
	consent, err := s.consents.Get(ctx, id)
	if err != nil {
		return nil, ErrConsentExpired
	}
	if consent.UserID != user.ID {
		return nil, ErrConsentExpired
	}
	return &consent, nil
}

// FinalizeConsent resolves a pending consent with the user's decision and
// returns the redirect URL the browser should be sent to. The pending request
// is removed either way; a consent can only be answered once.
func (s *AuthorizationService) FinalizeConsent(
	ctx context.Context,
	id string,
	user *models.User,
	approved bool,
) (string, error) {
	consent, err := s.GetConsent(ctx, id, user)
	if err != nil {
		return "", err
	}
	_ = s.consents.Delete(ctx, id)

	if !approved {
		if s.audit != nil {
			s.audit.Log(ctx, AuditLogEntry{
				EventType:    models.EventConsentDenied,
				Severity:     models.SeverityInfo,
				ActorUserID:  user.ID,
				ResourceType: models.ResourceAuthorization,
				ResourceID:   consent.ClientID,
				Action:       "Authorization consent denied",
				Success:      true,
			})
		}
		return redirectWithQuery(consent.RedirectURI, url.Values{
			"error": {"access_denied"},
			"state": {consent.State},
		}), nil
	}

	if consent.ResponseType == ResponseTypeToken {
		return s.finalizeImplicit(ctx, consent, user)
	}
	return s.finalizeCode(ctx, consent, user)
}

func (s *AuthorizationService) finalizeCode(
	ctx context.Context,
	consent *ConsentRequest,
	user *models.User,
) (string, error) {
	rawCode, err := util.CryptoRandomHex(authCodeBytes)
	if err != nil {
		return "", err
	}

	code := &models.AuthorizationCode{
		CodeHash:    util.SHA256Hex(rawCode),
		ClientID:    consent.ClientID,
		UserID:      user.ID,
		RedirectURI: consent.RedirectURI,
		Scopes:      consent.Scopes,
		ExpiresAt:   time.Now().Add(s.config.AuthCodeLifetime),
	}
	if err := s.store.CreateAuthorizationCode(code); err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeGenerated,
			Severity:     models.SeverityInfo,
			ActorUserID:  user.ID,
			ResourceType: models.ResourceAuthorization,
			ResourceID:   consent.ClientID,
			Action:       "Authorization code generated",
			Details:      models.AuditDetails{"scopes": consent.Scopes},
			Success:      true,
		})
	}

	return redirectWithQuery(consent.RedirectURI, url.Values{
		"code":  {rawCode},
		"state": {consent.State},
	}), nil
}

func (s *AuthorizationService) finalizeImplicit(
	ctx context.Context,
	consent *ConsentRequest,
	user *models.User,
) (string, error) {
	client, err := s.store.GetClient(consent.ClientID)
	if err != nil {
		return "", ErrInvalidClient
	}

	issued, err := s.grants.IssueImplicit(ctx, client, user, consent.Scopes)
	if err != nil {
		return "", err
	}

	// Implicit tokens travel in the fragment, never the query (RFC 6749 §4.2.2).
	fragment := url.Values{
		"access_token": {issued.AccessToken},
		"token_type":   {issued.TokenType},
		"expires_in":   {fmt.Sprintf("%d", issued.ExpiresIn)},
		"scope":        {issued.Scope},
		"state":        {consent.State},
	}
	return consent.RedirectURI + "#" + fragment.Encode(), nil
}

// redirectWithQuery appends params to a redirect URI, preserving any query it
// already carries.
func redirectWithQuery(redirectURI string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		// URI was validated against the client registration; fall back to
		// naive concatenation if it somehow fails to parse here.
		return redirectURI + "?" + params.Encode()
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			if v != "" {
				q.Set(key, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
