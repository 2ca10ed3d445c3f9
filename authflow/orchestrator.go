package authflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/identity"
	ierrors "github.com/idphub/identity-gateway/internal/errors"
	"github.com/idphub/identity-gateway/session"
	"github.com/idphub/identity-gateway/users"
)

// LoginInput carries either an authorization code to exchange with the
// provider or a raw identity token presented directly.
type LoginInput struct {
	Code    string `json:"code,omitempty"`
	IDToken string `json:"idToken,omitempty"`
}

// LoginResult is the login payload: a freshly minted access token plus the
// verified identity. The refresh token travels separately (cookie) and is
// never serialized in the body.
type LoginResult struct {
	AccessToken  string                     `json:"accessToken"`
	ExpiresIn    int                        `json:"expiresIn"`
	TokenType    string                     `json:"tokenType"`
	RefreshToken string                     `json:"-"`
	Identity     *identity.VerifiedIdentity `json:"identity"`

	user *users.User
}

// AuditActor exposes the acting identity to the audit interceptor: for a
// login, the actor is only known once the underlying call returns.
func (r *LoginResult) AuditActor() (string, string, string) {
	if r == nil || r.user == nil {
		return "", "", ""
	}
	return r.user.Email, r.user.DisplayName, string(r.user.Role)
}

// RefreshResult is the refresh payload: a brand-new access token.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	TokenType   string `json:"tokenType"`

	user *users.User
}

func (r *RefreshResult) AuditActor() (string, string, string) {
	if r == nil || r.user == nil {
		return "", "", ""
	}
	return r.user.Email, r.user.DisplayName, string(r.user.Role)
}

// LogoutResult reports whose session was ended.
type LogoutResult struct {
	Email string `json:"email"`
}

func (r *LogoutResult) AuditActor() (string, string, string) {
	if r == nil {
		return "", "", ""
	}
	return r.Email, "", ""
}

// Orchestrator composes key resolution, identity verification, the external
// user store, and the session token service into the login, refresh, and
// logout flows. Every flow is wrapped by the audit interceptor.
type Orchestrator struct {
	exchanger   *Exchanger
	verifier    *identity.Verifier
	userRepo    users.Repo
	sessions    *session.Service
	interceptor *audit.Interceptor
	nowFunc     func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.nowFunc = now
	}
}

// NewOrchestrator wires the login/refresh/logout flows. The exchanger may be
// nil when logins always present a raw identity token.
func NewOrchestrator(
	exchanger *Exchanger,
	verifier *identity.Verifier,
	userRepo users.Repo,
	sessions *session.Service,
	interceptor *audit.Interceptor,
	options ...OrchestratorOption,
) (*Orchestrator, error) {
	if verifier == nil {
		return nil, errors.New("[NewOrchestrator] verifier is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewOrchestrator] user repo is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewOrchestrator] session service is required")
	}
	if interceptor == nil {
		return nil, errors.New("[NewOrchestrator] audit interceptor is required")
	}

	o := &Orchestrator{
		exchanger:   exchanger,
		verifier:    verifier,
		userRepo:    userRepo,
		sessions:    sessions,
		interceptor: interceptor,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Login validates the external token (exchanging the code first when one is
// presented), upserts the identity with the user store, and mints a new
// access/refresh token pair.
func (o *Orchestrator) Login(ctx context.Context, input LoginInput, meta *audit.RequestMeta) (*LoginResult, error) {
	descriptor := audit.Descriptor{
		Action:        audit.ActionLogin,
		Resource:      audit.ResourceAuthentication,
		Description:   "User login via external identity provider",
		IncludeResult: true,
		ResourceIdentifier: func(call *audit.CallContext) string {
			if result, ok := call.Result.(*LoginResult); ok && result.Identity != nil {
				return result.Identity.Email
			}
			return ""
		},
	}

	call := &audit.CallContext{Named: map[string]any{"code": input.Code, "idToken": input.IDToken}}
	result, err := o.interceptor.Around(descriptor, call, meta, nil, func() (any, error) {
		return o.login(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return result.(*LoginResult), nil
}

func (o *Orchestrator) login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	rawIDToken := input.IDToken
	if input.Code != "" {
		if o.exchanger == nil {
			return nil, errors.New("authorization code login is not configured")
		}
		exchanged, err := o.exchanger.Exchange(ctx, input.Code)
		if err != nil {
			return nil, err
		}
		rawIDToken = exchanged
	}

	verified, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	user, err := o.upsertUser(ctx, verified)
	if err != nil {
		return nil, err
	}

	accessToken, err := o.sessions.MintAccessToken(user)
	if err != nil {
		return nil, errors.Wrap(err, "Orchestrator.login MintAccessToken")
	}

	refreshToken, err := o.sessions.MintRefreshToken(user)
	if err != nil {
		return nil, errors.Wrap(err, "Orchestrator.login MintRefreshToken")
	}

	return &LoginResult{
		AccessToken:  accessToken,
		ExpiresIn:    int(o.sessions.AccessTokenTTL().Seconds()),
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Identity:     verified,
		user:         user,
	}, nil
}

// upsertUser maps the verified identity to an internal user record. The
// mapping is idempotent: the same external id always resolves to the same
// internal user. A first-time identity creates a new record; a returning one
// only updates profile and last-seen metadata.
func (o *Orchestrator) upsertUser(ctx context.Context, verified *identity.VerifiedIdentity) (*users.User, error) {
	now := o.nowFunc()

	user, err := o.userRepo.GetByExternalID(ctx, verified.ExternalID)
	switch {
	case err == nil:
		user.Email = verified.Email
		user.DisplayName = verified.DisplayName
		user.LastSeenAt = now
	case ierrors.Is(err, ierrors.ErrUserNotFound):
		user = &users.User{
			ID:          uuid.New().String(),
			ExternalID:  verified.ExternalID,
			Email:       verified.Email,
			DisplayName: verified.DisplayName,
			TenantID:    verified.TenantID,
			Role:        users.RoleUser,
			Active:      true,
			CreatedAt:   now,
			LastSeenAt:  now,
		}
	default:
		return nil, errors.Wrap(err, "Orchestrator.upsertUser GetByExternalID")
	}

	if err := o.userRepo.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "Orchestrator.upsertUser Upsert")
	}
	return user, nil
}

// Refresh validates the refresh token and mints a brand-new access token. The
// presented refresh token remains valid until its own natural expiry.
func (o *Orchestrator) Refresh(ctx context.Context, rawRefreshToken string, meta *audit.RequestMeta) (*RefreshResult, error) {
	descriptor := audit.Descriptor{
		Action:        audit.ActionTokenRefresh,
		Resource:      audit.ResourceSessionToken,
		Description:   "Access token refreshed",
		IncludeResult: true,
	}

	call := &audit.CallContext{Named: map[string]any{"refreshToken": rawRefreshToken}}
	result, err := o.interceptor.Around(descriptor, call, meta, nil, func() (any, error) {
		accessToken, user, err := o.sessions.Refresh(ctx, rawRefreshToken)
		if err != nil {
			return nil, err
		}
		return &RefreshResult{
			AccessToken: accessToken,
			ExpiresIn:   int(o.sessions.AccessTokenTTL().Seconds()),
			TokenType:   "Bearer",
			user:        user,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*RefreshResult), nil
}

// Logout validates the bearer access token. There is no server-side
// revocation list: ending the session is a client-side cookie concern the
// transport layer handles after this succeeds.
func (o *Orchestrator) Logout(ctx context.Context, rawAccessToken string, meta *audit.RequestMeta) (*LogoutResult, error) {
	descriptor := audit.Descriptor{
		Action:        audit.ActionLogout,
		Resource:      audit.ResourceAuthentication,
		Description:   "User logout",
		IncludeResult: true,
	}

	call := &audit.CallContext{}
	result, err := o.interceptor.Around(descriptor, call, meta, nil, func() (any, error) {
		claims, err := o.sessions.Validate(rawAccessToken, session.TokenTypeAccess)
		if err != nil {
			return nil, err
		}
		return &LogoutResult{Email: claims.Email}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*LogoutResult), nil
}
