package authflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	ierrors "github.com/idphub/identity-gateway/internal/errors"
)

const exchangeTimeout = 15 * time.Second

// ExchangeConfig configures the outbound authorization-code exchange.
type ExchangeConfig struct {
	// Authority is the identity provider's issuer URL, used for OIDC
	// discovery of the token endpoint when TokenURL is not set explicitly.
	Authority    string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Exchanger swaps an authorization code for the provider's tokens with a
// form-encoded POST (grant_type=authorization_code, code, redirect URI,
// client id, client secret).
type Exchanger struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewExchanger creates an Exchanger, discovering the token endpoint from the
// authority when none is configured.
func NewExchanger(ctx context.Context, cfg ExchangeConfig) (*Exchanger, error) {
	endpoint := oauth2.Endpoint{TokenURL: cfg.TokenURL}
	if cfg.TokenURL == "" {
		provider, err := oidc.NewProvider(ctx, cfg.Authority)
		if err != nil {
			return nil, errors.Wrap(err, "NewExchanger oidc discovery")
		}
		endpoint = provider.Endpoint()
	}

	return &Exchanger{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		httpClient: &http.Client{Timeout: exchangeTimeout},
	}, nil
}

// Exchange swaps the authorization code for the provider's ID token. Error
// responses are mapped by HTTP status to the invalid-code / expired-code /
// invalid-tenant categories.
func (e *Exchanger) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := e.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return "", classifyExchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("token exchange response carried no id_token")
	}
	return rawIDToken, nil
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return ierrors.Wrapf(err, "token exchange failed")
	}

	switch retrieveErr.Response.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ierrors.ErrInvalidAuthorizationCode, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ierrors.ErrExpiredAuthorizationCode, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ierrors.ErrInvalidTenant, err)
	default:
		return ierrors.Wrapf(err, "token exchange failed with status %d", retrieveErr.Response.StatusCode)
	}
}
