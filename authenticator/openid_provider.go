package authenticator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
)

// Outbound calls (discovery, exchange, userinfo) are synchronous and carry
// no cancellation path of their own, so the client timeout is the bound.
const httpTimeout = 10 * time.Second

// OpenIDProvider implements Provider against any OIDC-compliant identity
// provider using the authorization code flow.
type OpenIDProvider struct {
	cfg    Config
	client *http.Client

	// Discovery runs at most once per process. The once gate also memoizes
	// failure: a provider that cannot be discovered is fatal at startup,
	// not something to retry per request.
	once        sync.Once
	provider    *oidc.Provider
	endpoints   Endpoints
	discoverErr error
}

// NewOpenIDProvider validates the configuration and returns a provider.
// Discovery is deferred to first use; call Endpoints at startup to make
// discovery failures fatal before serving traffic.
func NewOpenIDProvider(cfg Config) (*OpenIDProvider, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = httpTimeout

	return &OpenIDProvider{
		cfg:    cfg,
		client: client,
	}, nil
}

// HTTPClient exposes the shared outbound client so resource calls use the
// same timeout policy.
func (p *OpenIDProvider) HTTPClient() *http.Client {
	return p.client
}

// discover fetches and validates the provider's discovery document.
func (p *OpenIDProvider) discover(ctx context.Context) error {
	p.once.Do(func() {
		log.Printf("discovering OIDC endpoints at %s/.well-known/openid-configuration", p.cfg.Issuer)

		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.client), p.cfg.Issuer)
		if err != nil {
			p.discoverErr = fmt.Errorf("fetching discovery document: %v: %w", err, ErrDiscovery)
			return
		}

		var eps Endpoints
		if err := provider.Claims(&eps); err != nil {
			p.discoverErr = fmt.Errorf("parsing discovery document: %v: %w", err, ErrDiscovery)
			return
		}
		if eps.AuthorizationEndpoint == "" {
			p.discoverErr = fmt.Errorf("discovery document missing authorization_endpoint: %w", ErrDiscovery)
			return
		}
		if eps.TokenEndpoint == "" {
			p.discoverErr = fmt.Errorf("discovery document missing token_endpoint: %w", ErrDiscovery)
			return
		}
		if eps.UserinfoEndpoint == "" {
			p.discoverErr = fmt.Errorf("discovery document missing userinfo_endpoint: %w", ErrDiscovery)
			return
		}

		p.provider = provider
		p.endpoints = eps
	})
	return p.discoverErr
}

// Endpoints returns the discovered provider endpoints, running discovery on
// first use.
func (p *OpenIDProvider) Endpoints(ctx context.Context) (Endpoints, error) {
	if err := p.discover(ctx); err != nil {
		return Endpoints{}, err
	}
	return p.endpoints, nil
}

// oauth2Config builds the OAuth2 client configuration from the discovered
// endpoints. AuthStyleInHeader forces HTTP Basic authentication with the
// client credentials on the token endpoint.
func (p *OpenIDProvider) oauth2Config() oauth2.Config {
	return oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.endpoints.AuthorizationEndpoint,
			TokenURL:  p.endpoints.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL builds the authorization redirect URL carrying
// response_type=code, client_id, redirect_uri, scope and, when non-empty,
// state. Pure once discovery has resolved.
func (p *OpenIDProvider) AuthCodeURL(ctx context.Context, state string) (string, error) {
	if err := p.discover(ctx); err != nil {
		return "", err
	}
	conf := p.oauth2Config()
	return conf.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for tokens at the provider's token
// endpoint. The returned expiry is absolute, fixed at the moment the token
// response was received. A response missing access_token, scope or
// expires_in is rejected.
func (p *OpenIDProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	if err := p.discover(ctx); err != nil {
		return nil, err
	}

	conf := p.oauth2Config()
	log.Printf("calling %s to get access token and ID token", conf.Endpoint.TokenURL)

	oauth2Token, err := conf.Exchange(oidc.ClientContext(ctx, p.client), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %v: %w", err, ErrTokenExchange)
	}

	if oauth2Token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token: %w", ErrTokenExchange)
	}
	scope, ok := oauth2Token.Extra("scope").(string)
	if !ok || scope == "" {
		return nil, fmt.Errorf("token response missing scope: %w", ErrTokenExchange)
	}
	// oauth2 derives Expiry from expires_in at response receipt; a zero
	// expiry means the field was absent.
	if oauth2Token.Expiry.IsZero() {
		return nil, fmt.Errorf("token response missing expires_in: %w", ErrTokenExchange)
	}

	token := &Token{
		AccessToken: oauth2Token.AccessToken,
		Scope:       scope,
		ExpiresAt:   oauth2Token.Expiry,
	}
	if idToken, ok := oauth2Token.Extra("id_token").(string); ok {
		token.IDToken = idToken
	}

	log.Printf("got access token with scope %q", scope)
	if token.IDToken == "" {
		log.Print("did not get id_token")
	}

	return token, nil
}

// Verify checks the raw ID token's signature against the provider's JWKS
// and validates issuer and audience, returning its claims. Claims from an
// unverifiable token are never returned.
func (p *OpenIDProvider) Verify(ctx context.Context, rawIDToken string) (Claims, error) {
	if rawIDToken == "" {
		return nil, ErrMissingIDToken
	}
	if err := p.discover(ctx); err != nil {
		return nil, err
	}

	verifier := p.provider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
	idToken, err := verifier.Verify(oidc.ClientContext(ctx, p.client), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrVerification)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding id_token claims: %v: %w", err, ErrVerification)
	}
	return claims, nil
}
