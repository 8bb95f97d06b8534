package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars!!"

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "storefront-test"})
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newTestJWTService()

	token, expires, err := svc.Issue(IssueInput{
		Subject:     "ops-1",
		Username:    "dispatcher",
		Permissions: []string{PermSettlementRead, PermSettlementSettle},
		TTL:         time.Hour,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.Equal(t, "dispatcher", claims.Username)
	assert.Equal(t, "storefront-test", claims.Issuer)
	assert.True(t, claims.HasPermission(PermSettlementSettle))
	assert.False(t, claims.HasPermission(PermLedgerExport))
}

func TestJWTService_IssueRequiresSubject(t *testing.T) {
	_, _, err := newTestJWTService().Issue(IssueInput{TTL: time.Minute})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestJWTService_Validate(t *testing.T) {
	svc := newTestJWTService()

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := svc.Issue(IssueInput{Subject: "ops", TTL: time.Hour})
		require.NoError(t, err)
		svc.now = time.Now

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(time.Hour) }
		token, _, err := svc.Issue(IssueInput{Subject: "ops", TTL: time.Hour})
		require.NoError(t, err)
		svc.now = time.Now

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-that-is-long-enough", Issuer: "storefront-test"})
		token, _, err := other.Issue(IssueInput{Subject: "ops", TTL: time.Hour})
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "elsewhere"})
		token, _, err := other.Issue(IssueInput{Subject: "ops", TTL: time.Hour})
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm rejected", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "storefront-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaims_Permissions(t *testing.T) {
	c := &Claims{Permissions: []string{PermSettlementRead}}
	assert.True(t, c.HasAnyPermission(PermSettlementWrite, PermSettlementRead))
	assert.False(t, c.HasAnyPermission(PermSettlementWrite))

	admin := &Claims{Permissions: []string{Wildcard}}
	assert.True(t, admin.HasPermission(PermSettlementSettle))
}

func TestClaimsAuthorizer(t *testing.T) {
	agentID := uuid.New()
	authz := ClaimsAuthorizer{}

	err := authz.AuthorizeSettle(context.Background(), agentID)
	assert.Equal(t, "FORBIDDEN", shared.CodeOf(err))

	reader := WithClaims(context.Background(), &Claims{Permissions: []string{PermSettlementRead}})
	err = authz.AuthorizeSettle(reader, agentID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	settler := WithClaims(context.Background(), &Claims{Permissions: []string{PermSettlementSettle}})
	assert.NoError(t, authz.AuthorizeSettle(settler, agentID))
}

func TestClaimsFromContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Username: "x"})
	c, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "x", c.Username)
}
