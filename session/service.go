package session

import (
	"context"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/idphub/identity-gateway/internal/errors"
	"github.com/idphub/identity-gateway/users"
)

// TokenType marks a session token as either an access or a refresh token.
// A token of one type must never be accepted where the other is required.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = time.Hour
)

// Claims is the decoded claim set of a locally-issued session token. Access
// and refresh tokens share this schema and differ by TokenType.
type Claims struct {
	Email     string
	UserID    string
	TokenType TokenType
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service mints, validates, and refreshes locally-issued session tokens.
type Service struct {
	signer     Signer
	userRepo   users.Repo
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTokenExpiry sets the access and refresh token lifetimes.
func WithTokenExpiry(accessTTL, refreshTTL time.Duration) ServiceOption {
	return func(s *Service) {
		if accessTTL > 0 {
			s.accessTTL = accessTTL
		}
		if refreshTTL > 0 {
			s.refreshTTL = refreshTTL
		}
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService creates a session token service signing with the given signer.
func NewService(signer Signer, userRepo users.Repo, options ...ServiceOption) *Service {
	s := &Service{
		signer:     signer,
		userRepo:   userRepo,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *Service) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// MintAccessToken creates a signed access token for the user. Access tokens
// carry minimal authorization hints (the user's role) on top of the shared
// claim schema.
func (s *Service) MintAccessToken(user *users.User) (string, error) {
	claims := s.baseClaims(user, TokenTypeAccess, s.accessTTL)
	claims["roles"] = []string{string(user.Role)}
	return s.signer.Sign(claims)
}

// MintRefreshToken creates a signed refresh token for the user.
func (s *Service) MintRefreshToken(user *users.User) (string, error) {
	return s.signer.Sign(s.baseClaims(user, TokenTypeRefresh, s.refreshTTL))
}

func (s *Service) baseClaims(user *users.User, tokenType TokenType, ttl time.Duration) jwtlib.MapClaims {
	now := s.nowFunc()
	return jwtlib.MapClaims{
		"sub":        user.Email,
		"uid":        user.ID,
		"token_type": string(tokenType),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"jti":        uuid.New().String(),
	}
}

// Validate verifies the token's signature, confirms its type matches what the
// calling context expects, then confirms it has not expired. The type check
// deliberately runs before the expiry check: presenting a token of the wrong
// type is rejected as such even when the token is also expired.
func (s *Service) Validate(rawToken string, expected TokenType) (*Claims, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(rawToken, jwtlib.MapClaims{}, s.signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenSignatureInvalid) {
			return nil, &errors.SignatureError{Err: err}
		}
		return nil, errors.Wrapf(err, "invalid session token")
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.ErrInvalidToken
	}

	claims := decodeClaims(mapClaims)
	if claims.TokenType != expected {
		return nil, errors.NewRefreshTokenError(errors.RefreshWrongType, nil)
	}

	if !claims.ExpiresAt.After(s.nowFunc()) {
		return nil, errors.ErrTokenExpired
	}

	return claims, nil
}

// Refresh validates the refresh token, re-resolves the referenced user, and
// mints a brand-new access token. The presented refresh token is not rotated:
// it remains valid until its own natural expiry.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (string, *users.User, error) {
	claims, err := s.Validate(rawRefreshToken, TokenTypeRefresh)
	if err != nil {
		var refreshErr *errors.RefreshTokenError
		if errors.As(err, &refreshErr) {
			return "", nil, refreshErr
		}
		if errors.Is(err, errors.ErrTokenExpired) {
			return "", nil, errors.NewRefreshTokenError(errors.RefreshExpired, err)
		}
		return "", nil, errors.NewRefreshTokenError(errors.RefreshInvalid, err)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", nil, errors.NewRefreshTokenError(errors.RefreshUserNotFound, err)
	}

	if !user.Active {
		return "", nil, errors.NewRefreshTokenError(errors.RefreshUserInactive, nil)
	}

	if user.Email != claims.Email {
		return "", nil, errors.NewRefreshTokenError(errors.RefreshEmailMismatch, nil)
	}

	accessToken, err := s.MintAccessToken(user)
	if err != nil {
		return "", nil, errors.Wrapf(err, "Service.Refresh MintAccessToken")
	}
	return accessToken, user, nil
}

func decodeClaims(mapClaims jwtlib.MapClaims) *Claims {
	email, _ := mapClaims["sub"].(string)
	userID, _ := mapClaims["uid"].(string)
	tokenType, _ := mapClaims["token_type"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	var roles []string
	if claimRoles, ok := mapClaims["roles"].([]any); ok {
		for _, r := range claimRoles {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	return &Claims{
		Email:     email,
		UserID:    userID,
		TokenType: TokenType(tokenType),
		Roles:     roles,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}
}
