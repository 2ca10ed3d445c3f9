package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/idphub/identity-gateway/internal/errors"
	"github.com/idphub/identity-gateway/keyset"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Optional profile claims copied into VerifiedIdentity.Profile when present.
var profileClaims = []string{"given_name", "family_name", "preferred_username", "roles_hint", "locale"}

// Verifier validates externally-issued identity tokens: structure, signature
// against the provider's key set, and the configured issuer/audience/tenant
// and expiry claims, in that order.
type Verifier struct {
	resolver *keyset.Resolver
	issuer   string
	audience string
	tenantID string
}

// NewVerifier creates a Verifier bound to the configured authority, client
// identifier and tenant.
func NewVerifier(resolver *keyset.Resolver, issuer, audience, tenantID string) *Verifier {
	return &Verifier{
		resolver: resolver,
		issuer:   issuer,
		audience: audience,
		tenantID: tenantID,
	}
}

// Verify validates the raw token and returns the canonical identity it asserts.
//
// Failure categories, in check order: TokenFormatError (structure),
// KeyResolutionError (unknown kid / fetch failure), SignatureError
// (cryptographic mismatch), then one ClaimValidationError variant per failing
// claim check: issuer, audience, tenant, expiry.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	rawToken = strings.TrimSpace(rawToken)
	segments := strings.Split(rawToken, ".")
	if len(segments) != 3 {
		return nil, &errors.TokenFormatError{Detail: fmt.Sprintf("expected 3 segments, got %d", len(segments))}
	}

	// A signature segment that does not even decode is a tampered signature,
	// not a structural problem: any corruption of the signature must surface
	// as a signature failure. Header and payload decode failures stay
	// structural.
	for i, segment := range segments[:2] {
		if _, err := base64.RawURLEncoding.DecodeString(segment); err != nil {
			return nil, &errors.TokenFormatError{Detail: fmt.Sprintf("segment %d is not base64url", i)}
		}
	}
	if _, err := base64.RawURLEncoding.DecodeString(segments[2]); err != nil {
		return nil, &errors.SignatureError{Err: fmt.Errorf("signature segment is not base64url: %w", err)}
	}

	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{"RS256"}),
		jwtlib.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(rawToken, jwtlib.MapClaims{}, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, &errors.TokenFormatError{Detail: "token header missing kid"}
		}
		return v.resolver.Resolve(ctx, kid)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, &errors.TokenFormatError{Detail: "unexpected claims payload"}
	}

	// Claim checks run in a fixed order so each failure surfaces the first
	// offending claim, not an arbitrary one.
	iss, _ := claims["iss"].(string)
	if iss != v.issuer {
		return nil, errors.NewClaimValidationError(errors.ClaimIssuer, iss)
	}

	aud := audienceClaim(claims)
	if aud != v.audience {
		return nil, errors.NewClaimValidationError(errors.ClaimAudience, aud)
	}

	tid, _ := claims["tid"].(string)
	if tid != v.tenantID {
		return nil, errors.NewClaimValidationError(errors.ClaimTenant, tid)
	}

	exp, _ := claims["exp"].(float64)
	expiresAt := time.Unix(int64(exp), 0)
	if exp == 0 || !expiresAt.After(NowTimeFunc()) {
		return nil, errors.NewClaimValidationError(errors.ClaimExpired, expiresAt.UTC().Format(time.RFC3339))
	}

	return identityFromClaims(claims, aud, expiresAt), nil
}

func identityFromClaims(claims jwtlib.MapClaims, audience string, expiresAt time.Time) *VerifiedIdentity {
	externalID, _ := claims["oid"].(string)
	if externalID == "" {
		externalID, _ = claims["sub"].(string)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["preferred_username"].(string)
	}

	name, _ := claims["name"].(string)
	iss, _ := claims["iss"].(string)
	tid, _ := claims["tid"].(string)
	iat, _ := claims["iat"].(float64)

	id := &VerifiedIdentity{
		ExternalID:  externalID,
		Email:       email,
		DisplayName: name,
		TenantID:    tid,
		Issuer:      iss,
		Audience:    audience,
		IssuedAt:    time.Unix(int64(iat), 0),
		ExpiresAt:   expiresAt,
	}

	for _, claim := range profileClaims {
		if value, ok := claims[claim].(string); ok && value != "" {
			if id.Profile == nil {
				id.Profile = make(map[string]string)
			}
			id.Profile[claim] = value
		}
	}

	return id
}

func audienceClaim(claims jwtlib.MapClaims) string {
	switch aud := claims["aud"].(type) {
	case string:
		return aud
	case []any:
		if len(aud) > 0 {
			if s, ok := aud[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func classifyParseError(err error) error {
	var keyErr *errors.KeyResolutionError
	if errors.As(err, &keyErr) {
		return keyErr
	}

	var formatErr *errors.TokenFormatError
	if errors.As(err, &formatErr) {
		return formatErr
	}

	if errors.Is(err, jwtlib.ErrTokenSignatureInvalid) {
		return &errors.SignatureError{Err: err}
	}

	if errors.Is(err, jwtlib.ErrTokenMalformed) {
		return &errors.TokenFormatError{Detail: err.Error()}
	}

	// Unexpected algorithm or any other parse failure is a structural problem.
	return &errors.TokenFormatError{Detail: err.Error()}
}
