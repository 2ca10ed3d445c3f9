package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idphub/identity-gateway/internal/errors"
	"github.com/idphub/identity-gateway/session"
	"github.com/idphub/identity-gateway/users"
)

func newTestUser() *users.User {
	return &users.User{
		ID:          "user-1",
		ExternalID:  "ext-1",
		Email:       "jane@example.com",
		DisplayName: "Jane Doe",
		Role:        users.RoleUser,
		Active:      true,
		CreatedAt:   time.Now(),
		LastSeenAt:  time.Now(),
	}
}

func newTestService(t *testing.T, options ...session.ServiceOption) (*session.Service, *users.InMemoryRepo) {
	t.Helper()
	repo := users.NewInMemoryRepo()
	svc := session.NewService(session.NewHMACSigner("test-secret"), repo, options...)
	return svc, repo
}

func TestService_MintAndValidate(t *testing.T) {
	svc, _ := newTestService(t)
	user := newTestUser()

	t.Run("access token round trip", func(t *testing.T) {
		raw, err := svc.MintAccessToken(user)
		require.NoError(t, err)

		claims, err := svc.Validate(raw, session.TokenTypeAccess)
		require.NoError(t, err)
		require.Equal(t, "jane@example.com", claims.Email)
		require.Equal(t, "user-1", claims.UserID)
		require.Equal(t, session.TokenTypeAccess, claims.TokenType)
		require.Equal(t, []string{"user"}, claims.Roles)
	})

	t.Run("refresh token round trip", func(t *testing.T) {
		raw, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		claims, err := svc.Validate(raw, session.TokenTypeRefresh)
		require.NoError(t, err)
		require.Equal(t, session.TokenTypeRefresh, claims.TokenType)
		require.Empty(t, claims.Roles)
	})

	t.Run("wrong secret fails signature check", func(t *testing.T) {
		other := session.NewService(session.NewHMACSigner("other-secret"), users.NewInMemoryRepo())
		raw, err := other.MintAccessToken(user)
		require.NoError(t, err)

		_, err = svc.Validate(raw, session.TokenTypeAccess)
		require.ErrorIs(t, err, errors.ErrSignature)
	})

	t.Run("access token rejected where refresh is required", func(t *testing.T) {
		raw, err := svc.MintAccessToken(user)
		require.NoError(t, err)

		_, err = svc.Validate(raw, session.TokenTypeRefresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshWrongType, refreshErr.Reason)
	})

	t.Run("refresh token rejected where access is required", func(t *testing.T) {
		raw, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		_, err = svc.Validate(raw, session.TokenTypeAccess)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshWrongType, refreshErr.Reason)
	})

	t.Run("type mismatch decides before expiry", func(t *testing.T) {
		// An expired access token presented as a refresh token must be
		// rejected for its type, not its expiry.
		past := time.Now().Add(-2 * time.Hour)
		expiredSvc, _ := newTestService(t, session.WithNowFunc(func() time.Time { return past }))
		raw, err := expiredSvc.MintAccessToken(user)
		require.NoError(t, err)

		_, err = svc.Validate(raw, session.TokenTypeRefresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshWrongType, refreshErr.Reason)
	})

	t.Run("expired token of expected type", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		expiredSvc, _ := newTestService(t, session.WithNowFunc(func() time.Time { return past }))
		raw, err := expiredSvc.MintAccessToken(user)
		require.NoError(t, err)

		_, err = svc.Validate(raw, session.TokenTypeAccess)
		require.ErrorIs(t, err, errors.ErrTokenExpired)
	})
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("mints a new access token without rotating the refresh token", func(t *testing.T) {
		svc, repo := newTestService(t)
		user := newTestUser()
		require.NoError(t, repo.Upsert(ctx, user))

		originalAccess, err := svc.MintAccessToken(user)
		require.NoError(t, err)
		refresh, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		newAccess, refreshedUser, err := svc.Refresh(ctx, refresh)
		require.NoError(t, err)
		require.Equal(t, user.ID, refreshedUser.ID)

		newClaims, err := svc.Validate(newAccess, session.TokenTypeAccess)
		require.NoError(t, err)
		originalClaims, err := svc.Validate(originalAccess, session.TokenTypeAccess)
		require.NoError(t, err)
		require.False(t, newClaims.ExpiresAt.Before(originalClaims.ExpiresAt))

		// The same refresh token remains usable until its own expiry.
		_, _, err = svc.Refresh(ctx, refresh)
		require.NoError(t, err)
	})

	t.Run("access token ttl is shorter than refresh ttl", func(t *testing.T) {
		svc, _ := newTestService(t, session.WithTokenExpiry(900*time.Second, 3600*time.Second))
		require.Equal(t, 900*time.Second, svc.AccessTokenTTL())
		require.Equal(t, 3600*time.Second, svc.RefreshTokenTTL())

		user := newTestUser()
		access, err := svc.MintAccessToken(user)
		require.NoError(t, err)
		refresh, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		accessClaims, err := svc.Validate(access, session.TokenTypeAccess)
		require.NoError(t, err)
		refreshClaims, err := svc.Validate(refresh, session.TokenTypeRefresh)
		require.NoError(t, err)
		require.True(t, refreshClaims.ExpiresAt.After(accessClaims.ExpiresAt))
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _ := newTestService(t)
		refresh, err := svc.MintRefreshToken(newTestUser())
		require.NoError(t, err)

		_, _, err = svc.Refresh(ctx, refresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshUserNotFound, refreshErr.Reason)
	})

	t.Run("inactive user", func(t *testing.T) {
		svc, repo := newTestService(t)
		user := newTestUser()
		refresh, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		user.Active = false
		require.NoError(t, repo.Upsert(ctx, user))

		_, _, err = svc.Refresh(ctx, refresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshUserInactive, refreshErr.Reason)
	})

	t.Run("email mismatch", func(t *testing.T) {
		svc, repo := newTestService(t)
		user := newTestUser()
		refresh, err := svc.MintRefreshToken(user)
		require.NoError(t, err)

		user.Email = "jane.renamed@example.com"
		require.NoError(t, repo.Upsert(ctx, user))

		_, _, err = svc.Refresh(ctx, refresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshEmailMismatch, refreshErr.Reason)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		expiredSvc, repo := newTestService(t, session.WithNowFunc(func() time.Time { return past }))
		user := newTestUser()
		require.NoError(t, repo.Upsert(ctx, user))

		refresh, err := expiredSvc.MintRefreshToken(user)
		require.NoError(t, err)

		liveSvc := session.NewService(session.NewHMACSigner("test-secret"), repo)
		_, _, err = liveSvc.Refresh(ctx, refresh)
		var refreshErr *errors.RefreshTokenError
		require.ErrorAs(t, err, &refreshErr)
		require.Equal(t, errors.RefreshExpired, refreshErr.Reason)
	})
}
