package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradevera/internal/billing"
	"tradevera/internal/logging"
	"tradevera/internal/storage"
)

// Service handles account registration and token issuance
type Service struct {
	repo            UserStore
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	config          Config
	logger          *logging.Logger
}

// NewService creates a new authentication service
func NewService(repo UserStore, config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = DefaultConfig().AccessTokenDuration
	}

	return &Service{
		repo:            repo,
		jwtManager:      NewJWTManager(config.JWTSecret, config.AccessTokenDuration),
		passwordManager: NewPasswordManager(config.BcryptCost, config.MinPasswordLength),
		config:          config,
		logger:          logging.WithComponent("auth"),
	}, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Register creates a new account on the free plan
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	if err := s.passwordManager.ValidatePasswordStrength(req.Password); err != nil {
		return nil, AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}

	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Plan:         billing.TierFree,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		User:        toUserResponse(user),
		AccessToken: token,
		ExpiresIn:   s.jwtManager.GetAccessTokenDuration(),
		TokenType:   "Bearer",
	}, nil
}

// IssueToken mints an access token for user
func (s *Service) IssueToken(user *User) (string, error) {
	return s.jwtManager.GenerateAccessToken(UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Plan:   string(billing.ParseTier(string(user.Plan))),
	})
}

// GetUser loads an account by id
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
