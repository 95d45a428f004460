package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"
	"github.com/wildme/houston/internal/util"

	"github.com/google/uuid"
)

// tokenValueBytes sizes raw access/refresh values (256 bits, hex-encoded).
const tokenValueBytes = 32

// TokenService issues, rotates, resolves, and revokes bearer tokens. Raw
// values exist only in memory and in the issuance response; the store holds
// SHA-256 hashes.
type TokenService struct {
	store   *store.Store
	config  *config.Config
	audit   *AuditService
	metrics metrics.Recorder
}

func NewTokenService(
	s *store.Store,
	cfg *config.Config,
	audit *AuditService,
	m metrics.Recorder,
) *TokenService {
	return &TokenService{store: s, config: cfg, audit: audit, metrics: m}
}

// Issue mints a fresh token pair for (client, user). Any previous token for
// the pair is superseded in the same transaction, so the pair never holds
// more than one live token.
func (s *TokenService) Issue(
	ctx context.Context,
	client *models.OAuthClient,
	user *models.User,
	scopes string,
	grantType string,
	withRefresh bool,
) (*models.OAuthToken, error) {
	start := time.Now()

	rawAccess, err := util.CryptoRandomHex(tokenValueBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	var rawRefresh, refreshHash string
	if withRefresh {
		rawRefresh, err = util.CryptoRandomHex(tokenValueBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate refresh token: %w", err)
		}
		refreshHash = util.SHA256Hex(rawRefresh)
	}

	now := time.Now()
	token := &models.OAuthToken{
		ID:               uuid.New().String(),
		TokenType:        "Bearer",
		AccessTokenHash:  util.SHA256Hex(rawAccess),
		RefreshTokenHash: refreshHash,
		RawAccessToken:   rawAccess,
		RawRefreshToken:  rawRefresh,
		Scopes:           scopes,
		ClientID:         client.ClientID,
		UserID:           user.ID,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.config.AccessTokenLifetime),
	}

	if err := s.store.ReplaceToken(client.ClientID, user.ID, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	s.metrics.RecordTokenIssued(grantType, time.Since(start))

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenIssued,
			Severity:     models.SeverityInfo,
			ActorUserID:  user.ID,
			ResourceType: models.ResourceToken,
			ResourceID:   token.ID,
			Action:       "Bearer token issued",
			Details: models.AuditDetails{
				"client_id":  client.ClientID,
				"grant_type": grantType,
				"scopes":     scopes,
				"refresh":    withRefresh,
			},
			Success: true,
		})
	}

	return token, nil
}

// Resolve maps a raw access token value back to its live record and principal.
// Every failure mode returns ErrTokenInvalid.
func (s *TokenService) Resolve(rawAccess string) (*models.OAuthToken, *models.User, error) {
	if rawAccess == "" {
		return nil, nil, ErrTokenInvalid
	}

	token, err := s.store.GetTokenByAccessHash(util.SHA256Hex(rawAccess))
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}
	if !token.IsLive() {
		return nil, nil, ErrTokenInvalid
	}

	user, err := s.store.GetUserByID(token.UserID)
	if err != nil || !user.IsActive {
		return nil, nil, ErrTokenInvalid
	}

	return token, user, nil
}

// ResolveRefresh maps a raw refresh token value back to its record without
// checking the refresh window; the grant engine owns that decision.
func (s *TokenService) ResolveRefresh(rawRefresh string) (*models.OAuthToken, error) {
	if rawRefresh == "" {
		return nil, ErrInvalidGrant
	}
	token, err := s.store.GetTokenByRefreshHash(util.SHA256Hex(rawRefresh))
	if err != nil {
		return nil, ErrInvalidGrant
	}
	return token, nil
}

// Revoke deletes the token matching the raw value, searching access values
// first and then refresh values. Unknown values succeed silently (RFC 7009
// §2.2: revoking an invalid token is not an error).
func (s *TokenService) Revoke(ctx context.Context, rawValue string) error {
	if rawValue == "" {
		return nil
	}

	hash := util.SHA256Hex(rawValue)
	token, err := s.store.GetTokenByAccessHash(hash)
	if err != nil {
		token, err = s.store.GetTokenByRefreshHash(hash)
	}
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := s.store.DeleteToken(token.ID); err != nil {
		return err
	}

	s.metrics.RecordTokenRevoked("client_request")

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenRevoked,
			Severity:     models.SeverityInfo,
			ActorUserID:  token.UserID,
			ResourceType: models.ResourceToken,
			ResourceID:   token.ID,
			Action:       "Bearer token revoked",
			Details:      models.AuditDetails{"client_id": token.ClientID},
			Success:      true,
		})
	}
	return nil
}

// RevokeAllUserTokens deletes every token belonging to a user. Used when an
// account is deactivated.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	if err := s.store.DeleteTokensByUserID(userID); err != nil {
		return err
	}
	s.metrics.RecordTokenRevoked("user_deactivated")
	return nil
}

// Sweep removes expired tokens and authorization codes. Run periodically from
// a background ticker.
func (s *TokenService) Sweep(ctx context.Context) {
	if err := s.store.DeleteExpiredTokens(); err != nil {
		log.Printf("[Token] Sweep: failed to delete expired tokens: %v", err)
	}
	if err := s.store.DeleteExpiredAuthorizationCodes(); err != nil {
		log.Printf("[Token] Sweep: failed to delete expired authorization codes: %v", err)
	}
}

// StartSweeper launches the background expiry sweeper. It stops when ctx is
// cancelled.
func (s *TokenService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("[Token] Expiry sweeper started, interval %s", interval)
}
