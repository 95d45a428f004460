package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	store   *store.Store
	metrics metrics.Recorder
}

func NewUserService(s *store.Store, m metrics.Recorder) *UserService {
	return &UserService{store: s, metrics: m}
}

// Authenticate resolves a username/password pair to a user. Unknown user,
// wrong password, and inactive account all collapse into
// ErrInvalidCredentials.
func (s *UserService) Authenticate(
	ctx context.Context,
	username, password string,
) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		s.metrics.RecordLogin(false)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive || !user.VerifyPassword(password) {
		s.metrics.RecordLogin(false)
		return nil, ErrInvalidCredentials
	}
	s.metrics.RecordLogin(true)
	return user, nil
}

func (s *UserService) GetUserByID(id string) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) ListUsers() ([]models.User, error) {
	return s.store.ListUsers()
}

type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	FullName string
	IsAdmin  bool
}

func (s *UserService) CreateUser(req CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		IsActive:     true,
		IsAdmin:      req.IsAdmin,
	}

	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetAdmin toggles the admin capability of a user.
func (s *UserService) SetAdmin(userID string, isAdmin bool) (*models.User, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user.IsAdmin = isAdmin
	if err := s.store.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeactivateUser marks a user inactive and deletes all their tokens.
func (s *UserService) DeactivateUser(userID string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	user.IsActive = false
	if err := s.store.UpdateUser(user); err != nil {
		return err
	}
	if err := s.store.DeleteTokensByUserID(userID); err != nil {
		log.Printf("[Users] Failed to delete tokens for deactivated user=%s: %v", userID, err)
	}
	return nil
}
