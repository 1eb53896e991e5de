package service

import (
	"context"
	"strings"
	"time"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AuthService registers users, checks credentials and turns bearer tokens
// into principals.
type AuthService struct {
	repo   store.Repository
	tokens *auth.TokenService
	hasher *auth.PasswordHasher
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(repo store.Repository, tokens *auth.TokenService, hasher *auth.PasswordHasher) *AuthService {
	return &AuthService{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		logger: util.GetLogger(),
	}
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates a customer account, optionally also holding the seller
// role. A taken email is a conflict.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	switch {
	case req.FirstName == "" || req.LastName == "":
		return nil, apperr.Validation("first and last name are required")
	case !strings.Contains(req.Email, "@"):
		return nil, apperr.Validation("invalid email")
	case len(req.Password) < 6:
		return nil, apperr.Validation("password must be at least 6 characters")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	roles := models.Roles{models.RoleCustomer}
	if req.RegisterAsSeller {
		roles = append(roles, models.RoleSeller)
	}
	user := &models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Roles:        roles,
		Enabled:      true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.Strings("roles", roles.Strings()))
	return user, nil
}

// Login checks credentials and issues a token. Unknown emails, wrong
// passwords and disabled accounts all yield the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		util.AuthFailuresTotal.WithLabelValues("unknown_user").Inc()
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Check(password, user.PasswordHash) {
		util.AuthFailuresTotal.WithLabelValues("bad_password").Inc()
		return nil, apperr.ErrInvalidCredentials
	}
	if !user.Enabled {
		util.AuthFailuresTotal.WithLabelValues("disabled").Inc()
		return nil, apperr.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, user.Roles)
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate verifies a bearer token.
func (s *AuthService) Authenticate(token string) (auth.Principal, error) {
	p, err := s.tokens.Verify(token)
	if err != nil {
		util.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
	}
	return p, err
}

// EnsureAdmin creates the bootstrap administrator when it does not exist.
// An existing account with that email is left untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	admin := &models.User{
		FirstName:    "System",
		LastName:     "Administrator",
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Roles:        models.Roles{models.RoleCustomer, models.RoleAdmin},
		Enabled:      true,
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil && !errors.Is(err, apperr.ErrConflict) {
		return err
	}
	s.logger.Info("Bootstrap administrator created", zap.String("email", admin.Email))
	return nil
}
