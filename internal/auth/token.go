// Package auth issues and verifies stateless identity tokens and carries the
// verified principal through a request.
package auth

import (
	"errors"
	"strconv"
	"time"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minSecretLength = 32

// Claims is the signed payload of an access token.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens. The role set is fixed
// at issuance; a role change only takes effect once a new token is issued.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the given identity and role set.
func (s *TokenService) Issue(userID int64, email string, roles models.Roles) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Email: email,
		Roles: roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the principal.
// Every failure is reported as apperr.ErrInvalidToken; the reason is only
// logged.
func (s *TokenService) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("Token rejected", zap.Error(err))
		return Principal{}, apperr.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Principal{}, apperr.ErrInvalidToken
	}

	roles := make(models.Roles, 0, len(claims.Roles))
	for _, name := range claims.Roles {
		role, ok := models.ParseRole(name)
		if !ok {
			return Principal{}, apperr.ErrInvalidToken
		}
		roles = append(roles, role)
	}

	return Principal{
		UserID:    userID,
		Email:     claims.Email,
		Roles:     roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
