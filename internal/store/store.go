package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/wildme/houston/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the credential store: the only shared mutable resource of the
// authorization core. All mutation goes through its transactional boundary.
type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.OAuthClient{},
		&models.AuthorizationCode{},
		&models.OAuthToken{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	if err := store.seedData(); err != nil {
		log.Printf("Warning: failed to seed data: %v", err)
	}

	return store, nil
}

// generateRandomPassword generates a random password of specified length
func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

func (s *Store) seedData() error {
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	if userCount == 0 {
		password, err := generateRandomPassword(16)
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:           uuid.New().String(),
			Username:     "admin",
			Email:        "admin@localhost",
			PasswordHash: string(hash),
			IsActive:     true,
			IsAdmin:      true,
		}
		if err := s.db.Create(user).Error; err != nil {
			return err
		}
		log.Printf("Created default user: admin / %s (admin)", password)
	}

	return nil
}

// notFound translates GORM's sentinel into the store's own, so callers never
// depend on the ORM.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// User operations

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	var existing models.User
	err := s.db.Where("username = ?", user.Username).First(&existing).Error
	if err == nil {
		return ErrUsernameConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(user).Error
}

func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

func (s *Store) DeleteUser(id string) error {
	return s.db.Delete(&models.User{}, "id = ?", id).Error
}

func (s *Store) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// OAuth client operations

func (s *Store) GetClient(clientID string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (s *Store) GetClientsByUserID(userID string) ([]models.OAuthClient, error) {
	var clients []models.OAuthClient
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// GetSessionClients returns every session client owned by a user. More than
// one indicates a stale state that the caller must collapse.
func (s *Store) GetSessionClients(userID string) ([]models.OAuthClient, error) {
	var clients []models.OAuthClient
	if err := s.db.Where("user_id = ? AND is_session = ?", userID, true).
		Order("created_at DESC").
		Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) CreateClient(client *models.OAuthClient) error {
	return s.db.Create(client).Error
}

func (s *Store) DeleteClient(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.OAuthClient{}).Error
}

// DeleteClients removes multiple clients and every token issued to them.
func (s *Store) DeleteClients(clientIDs []string) error {
	if len(clientIDs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id IN ?", clientIDs).
			Delete(&models.OAuthToken{}).Error; err != nil {
			return err
		}
		return tx.Where("client_id IN ?", clientIDs).
			Delete(&models.OAuthClient{}).Error
	})
}

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

// GetAuthorizationCode resolves a code by its hash, scoped to the presenting
// client so a code can never be exchanged by a different client.
func (s *Store) GetAuthorizationCode(codeHash, clientID string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ? AND client_id = ?", codeHash, clientID).
		First(&code).Error; err != nil {
		return nil, notFound(err)
	}
	return &code, nil
}

// ConsumeAuthorizationCode deletes the code row. The rows-affected guard makes
// consumption atomic: of two concurrent exchanges exactly one observes a
// deleted row, the other gets ErrCodeAlreadyConsumed.
func (s *Store) ConsumeAuthorizationCode(id uint) error {
	result := s.db.Where("id = ?", id).Delete(&models.AuthorizationCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeAlreadyConsumed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes() error {
	return s.db.Where("expires_at <= ?", time.Now()).
		Delete(&models.AuthorizationCode{}).Error
}

// Token operations

func (s *Store) GetTokenByAccessHash(hash string) (*models.OAuthToken, error) {
	var t models.OAuthToken
	if err := s.db.Where("access_token_hash = ?", hash).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) GetTokenByRefreshHash(hash string) (*models.OAuthToken, error) {
	if hash == "" {
		return nil, ErrRecordNotFound
	}
	var t models.OAuthToken
	if err := s.db.Where("refresh_token_hash = ?", hash).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) GetTokenByID(id string) (*models.OAuthToken, error) {
	var t models.OAuthToken
	if err := s.db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) GetTokensByUserID(userID string) ([]models.OAuthToken, error) {
	var tokens []models.OAuthToken
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Store) GetTokensByClientAndUser(clientID, userID string) ([]models.OAuthToken, error) {
	var tokens []models.OAuthToken
	if err := s.db.Where("client_id = ? AND user_id = ?", clientID, userID).
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// ReplaceToken deletes every existing token for the (client, user) pair and
// inserts the new one in a single transaction, so at most one live token exists
// for the pair at any instant.
func (s *Store) ReplaceToken(clientID, userID string, token *models.OAuthToken) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ? AND user_id = ?", clientID, userID).
			Delete(&models.OAuthToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

func (s *Store) DeleteToken(id string) error {
	return s.db.Where("id = ?", id).Delete(&models.OAuthToken{}).Error
}

func (s *Store) DeleteTokensByUserID(userID string) error {
	return s.db.Where("user_id = ?", userID).Delete(&models.OAuthToken{}).Error
}

// DeleteExpiredTokens removes rows no grant can use again: access expired and
// either no refresh token was issued or the refresh window has closed too. A
// row whose access portion has lapsed but whose refresh window is still open
// must survive the sweep, or refresh grants in the back half of the window
// would start failing.
func (s *Store) DeleteExpiredTokens() error {
	var expired []models.OAuthToken
	if err := s.db.Where("expires_at <= ?", time.Now()).Find(&expired).Error; err != nil {
		return err
	}

	ids := make([]string, 0, len(expired))
	for i := range expired {
		t := &expired[i]
		if !t.HasRefreshToken() || t.IsRefreshExpired() {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.Where("id IN ?", ids).Delete(&models.OAuthToken{}).Error
}

// Audit log operations

func (s *Store) CreateAuditLogs(logs []*models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.Create(logs).Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
