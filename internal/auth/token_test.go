package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_access_secret_key_very_long_for_testing"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, "marketplace-orders", 15*time.Minute)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := newTestTokenService(t)
	roles := models.Roles{models.RoleCustomer, models.RoleSeller}

	token, expiresAt, err := svc.Issue(42, "seller@example.com", roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	p, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "seller@example.com", p.Email)
	assert.Equal(t, roles, p.Roles)
	assert.NotEmpty(t, p.TokenID)
	assert.True(t, p.HasRole(models.RoleSeller))
	assert.False(t, p.HasRole(models.RoleAdmin))
}

func TestTokenService_ShortSecret(t *testing.T) {
	svc, err := NewTokenService("short", "iss", time.Minute)
	assert.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTestTokenService(t)
	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }

	token, _, err := svc.Issue(1, "a@example.com", models.Roles{models.RoleCustomer})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestTokenService_TamperedPayload(t *testing.T) {
	svc := newTestTokenService(t)
	token, _, err := svc.Issue(7, "c@example.com", models.Roles{models.RoleCustomer})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &claims))
	claims["roles"] = []string{"CUSTOMER", "ADMIN"}
	forged, err := json.Marshal(claims)
	require.NoError(t, err)
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)

	_, err = svc.Verify(strings.Join(parts, "."))
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestTokenService_UniformRejection(t *testing.T) {
	svc := newTestTokenService(t)

	other, err := NewTokenService("another_secret_key_that_is_long_enough_!!", "marketplace-orders", time.Minute)
	require.NoError(t, err)
	foreign, _, err := other.Issue(1, "x@example.com", models.Roles{models.RoleAdmin})
	require.NoError(t, err)

	wrongIssuer, err := NewTokenService(testSecret, "someone-else", time.Minute)
	require.NoError(t, err)
	otherIssuer, _, err := wrongIssuer.Issue(1, "x@example.com", models.Roles{models.RoleAdmin})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "1", "iss": "marketplace-orders", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "iss": "marketplace-orders",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "iss": "marketplace-orders", "exp": time.Now().Add(time.Hour).Unix(), "roles": []string{"ROOT"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "clearly-not-a-jwt-token-format",
		"wrong secret": foreign,
		"wrong issuer": otherIssuer,
		"alg none":     unsigned,
		"no expiry":    noExpiry,
		"unknown role": badRole,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := svc.Verify(token)
			assert.Equal(t, Principal{}, p)
			assert.Equal(t, apperr.ErrInvalidToken, err)
		})
	}
}

func TestPrincipalContextIsCopied(t *testing.T) {
	roles := models.Roles{models.RoleCustomer}
	ctx := WithPrincipal(context.Background(), Principal{UserID: 3, Roles: roles})
	roles[0] = models.RoleAdmin

	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, models.Roles{models.RoleCustomer}, p.Roles)
	assert.True(t, p.HasAnyRole(models.RoleSeller, models.RoleCustomer))

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, h.Check("s3cret-pass", hash))
	assert.False(t, h.Check("wrong", hash))
	assert.False(t, h.Check("s3cret-pass", "not-a-hash"))
}
