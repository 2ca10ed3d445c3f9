package config

// ProviderConfig describes the external identity provider: the authority that
// issues identity tokens, the client registration used at the token endpoint,
// and the key set published for signature verification.
type ProviderConfig interface {
	GetAuthority() string
	GetClientID() string
	GetClientSecret() string
	GetTenantID() string
	GetJWKSEndpoint() string
	GetTokenEndpoint() string
	GetRedirectURL() string
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetAuthority() string {
	return GetEnv("PROVIDER_AUTHORITY", "")
}

func (Provider) GetClientID() string {
	return GetEnv("PROVIDER_CLIENT_ID", "")
}

func (Provider) GetClientSecret() string {
	return GetEnv("PROVIDER_CLIENT_SECRET", "")
}

func (Provider) GetTenantID() string {
	return GetEnv("PROVIDER_TENANT_ID", "")
}

func (Provider) GetJWKSEndpoint() string {
	return GetEnv("PROVIDER_JWKS_ENDPOINT", "")
}

// GetTokenEndpoint returns the provider's token endpoint. When empty, the
// endpoint is discovered from the authority's OIDC configuration.
func (Provider) GetTokenEndpoint() string {
	return GetEnv("PROVIDER_TOKEN_ENDPOINT", "")
}

func (Provider) GetRedirectURL() string {
	return GetEnv("PROVIDER_REDIRECT_URL", "")
}
