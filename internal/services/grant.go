package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"
	"github.com/wildme/houston/internal/util"
)

// Grant type identifiers (RFC 6749 §4).
const (
	GrantTypePassword          = "password"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeImplicit          = "implicit" // metrics/audit label only; no token endpoint grant
)

// TokenRequest is the parsed body of a POST to the token endpoint.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scope        string
}

// IssuedToken is the wire-shaped success response of a grant.
type IssuedToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// GrantEngine validates token requests and dispatches them to the grant
// procedure named by grant_type. Validation runs in a fixed order per grant:
// request shape, then client, then principal, then scope. Client and
// principal lookup failures collapse into the generic invalid_client /
// invalid_grant errors so the endpoint cannot be used to enumerate
// credentials.
type GrantEngine struct {
	store   *store.Store
	config  *config.Config
	users   *UserService
	tokens  *TokenService
	audit   *AuditService
	metrics metrics.Recorder
}

func NewGrantEngine(
	s *store.Store,
	cfg *config.Config,
	users *UserService,
	tokens *TokenService,
	audit *AuditService,
	m metrics.Recorder,
) *GrantEngine {
	return &GrantEngine{
		store:   s,
		config:  cfg,
		users:   users,
		tokens:  tokens,
		audit:   audit,
		metrics: m,
	}
}

// Exchange runs one token-endpoint grant to completion.
func (e *GrantEngine) Exchange(ctx context.Context, req TokenRequest) (*IssuedToken, error) {
	var (
		issued *IssuedToken
		err    error
	)

	switch req.GrantType {
	case GrantTypePassword:
		issued, err = e.passwordGrant(ctx, req)
	case GrantTypeAuthorizationCode:
		issued, err = e.authorizationCodeGrant(ctx, req)
	case GrantTypeRefreshToken:
		issued, err = e.refreshTokenGrant(ctx, req)
	case GrantTypeClientCredentials:
		issued, err = e.clientCredentialsGrant(ctx, req)
	case "":
		err = ErrInvalidRequest
	default:
		err = ErrUnsupportedGrantType
	}

	if err != nil {
		e.metrics.RecordGrantRejected(req.GrantType, err.Error())
	}
	return issued, err
}

// passwordGrant (RFC 6749 §4.3). The user's own credentials authenticate the
// request; a client secret is never required here.
func (e *GrantEngine) passwordGrant(ctx context.Context, req TokenRequest) (*IssuedToken, error) {
	if req.Username == "" || req.Password == "" || req.ClientID == "" {
		return nil, ErrInvalidRequest
	}

	client, err := e.store.GetClient(req.ClientID)
	if err != nil {
		return nil, ErrInvalidClient
	}

	user, err := e.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, ErrInvalidGrant
	}

	scopes, err := e.resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	token, err := e.tokens.Issue(ctx, client, user, scopes, GrantTypePassword, true)
	if err != nil {
		return nil, err
	}
	return e.respond(token), nil
}

// authorizationCodeGrant (RFC 6749 §4.1.3). The code is single-use: the row
// is deleted on exchange, and a rows-affected guard in the store turns a
// concurrent second exchange into invalid_grant.
func (e *GrantEngine) authorizationCodeGrant(
	ctx context.Context,
	req TokenRequest,
) (*IssuedToken, error) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		return nil, ErrInvalidRequest
	}

	client, err := e.authenticateClient(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	code, err := e.store.GetAuthorizationCode(util.SHA256Hex(req.Code), client.ClientID)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if code.IsExpired() {
		_ = e.store.ConsumeAuthorizationCode(code.ID)
		return nil, ErrInvalidGrant
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, ErrInvalidGrant
	}

	if err := e.store.ConsumeAuthorizationCode(code.ID); err != nil {
		if errors.Is(err, store.ErrCodeAlreadyConsumed) {
			log.Printf("[Grant] Authorization code replay for client %s", client.ClientID)
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	user, err := e.store.GetUserByID(code.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidGrant
	}

	token, err := e.tokens.Issue(ctx, client, user, code.Scopes, GrantTypeAuthorizationCode, true)
	if err != nil {
		return nil, err
	}

	if e.audit != nil {
		e.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeExchanged,
			Severity:     models.SeverityInfo,
			ActorUserID:  user.ID,
			ResourceType: models.ResourceAuthorization,
			ResourceID:   client.ClientID,
			Action:       "Authorization code exchanged",
			Details:      models.AuditDetails{"scopes": code.Scopes},
			Success:      true,
		})
	}
	return e.respond(token), nil
}

// refreshTokenGrant (RFC 6749 §6). Rotation: the old pair is superseded by
// the new one inside the issuance transaction.
func (e *GrantEngine) refreshTokenGrant(
	ctx context.Context,
	req TokenRequest,
) (*IssuedToken, error) {
	if req.RefreshToken == "" || req.ClientID == "" {
		return nil, ErrInvalidRequest
	}

	client, err := e.authenticateClient(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	old, err := e.tokens.ResolveRefresh(req.RefreshToken)
	if err != nil {
		e.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}
	if old.ClientID != client.ClientID || old.Revoked || old.IsRefreshExpired() {
		e.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}

	scopes := old.Scopes
	if req.Scope != "" {
		if !models.ScopesSubset(old.GrantedScopeSet(), models.SplitScopes(req.Scope)) {
			e.metrics.RecordTokenRefresh(false)
			return nil, ErrInvalidScope
		}
		scopes = req.Scope
	}

	user, err := e.store.GetUserByID(old.UserID)
	if err != nil || !user.IsActive {
		e.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}

	token, err := e.tokens.Issue(ctx, client, user, scopes, GrantTypeRefreshToken, true)
	if err != nil {
		e.metrics.RecordTokenRefresh(false)
		return nil, err
	}
	e.metrics.RecordTokenRefresh(true)

	if e.audit != nil {
		e.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenRefreshed,
			Severity:     models.SeverityInfo,
			ActorUserID:  user.ID,
			ResourceType: models.ResourceToken,
			ResourceID:   token.ID,
			Action:       "Token pair rotated on refresh",
			Details: models.AuditDetails{
				"client_id":    client.ClientID,
				"old_token_id": old.ID,
			},
			Success: true,
		})
	}
	return e.respond(token), nil
}

// clientCredentialsGrant (RFC 6749 §4.4). Confidential clients only; the
// principal is the client's owning user and no refresh token is issued.
func (e *GrantEngine) clientCredentialsGrant(
	ctx context.Context,
	req TokenRequest,
) (*IssuedToken, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, ErrInvalidRequest
	}

	client, err := e.store.GetClient(req.ClientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if !client.IsConfidential() {
		return nil, ErrUnauthorizedClient
	}
	if !client.VerifySecret(req.ClientSecret) {
		return nil, ErrInvalidClient
	}

	user, err := e.store.GetUserByID(client.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidClient
	}

	scopes, err := e.resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	token, err := e.tokens.Issue(ctx, client, user, scopes, GrantTypeClientCredentials, false)
	if err != nil {
		return nil, err
	}
	return e.respond(token), nil
}

// IssueImplicit mints an access token for response_type=token. No refresh
// token (RFC 6749 §4.2.2). The authorize endpoint delivers it in the redirect
// fragment.
func (e *GrantEngine) IssueImplicit(
	ctx context.Context,
	client *models.OAuthClient,
	user *models.User,
	scopes string,
) (*IssuedToken, error) {
	token, err := e.tokens.Issue(ctx, client, user, scopes, GrantTypeImplicit, false)
	if err != nil {
		return nil, err
	}
	return e.respond(token), nil
}

// authenticateClient resolves a client for the grants that demand secret
// proof from confidential clients. Public clients pass with no secret.
func (e *GrantEngine) authenticateClient(
	clientID, clientSecret string,
) (*models.OAuthClient, error) {
	client, err := e.store.GetClient(clientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if client.IsConfidential() && !client.VerifySecret(clientSecret) {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// resolveScopes applies the request's scope parameter against the client's
// registered defaults: empty means the defaults, anything else must be a
// recognized subset of them.
func (e *GrantEngine) resolveScopes(client *models.OAuthClient, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return client.DefaultScopes, nil
	}

	granted := client.DefaultScopeSet()
	scopes := models.SplitScopes(requested)
	for _, scope := range scopes {
		if !e.config.IsRecognizedScope(scope) {
			return "", ErrInvalidScope
		}
	}
	if !models.ScopesSubset(granted, scopes) {
		return "", ErrInvalidScope
	}
	return models.JoinScopes(scopes), nil
}

func (e *GrantEngine) respond(token *models.OAuthToken) *IssuedToken {
	return &IssuedToken{
		AccessToken:  token.RawAccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int64(time.Until(token.ExpiresAt).Round(time.Second).Seconds()),
		RefreshToken: token.RawRefreshToken,
		Scope:        token.Scopes,
	}
}
