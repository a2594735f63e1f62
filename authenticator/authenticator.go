package authenticator

import (
	"context"
	"time"
)

// Config holds the relying-party configuration for one identity provider.
type Config struct {
	// Issuer is the provider base URI; discovery fetches
	// {Issuer}/.well-known/openid-configuration.
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Endpoints is the immutable snapshot of the provider's discovery document
// that the rest of the app consumes. Resolved at most once per process.
type Endpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// Token is the result of a successful authorization-code exchange. It is
// consumed immediately to populate a session and then discarded.
type Token struct {
	AccessToken string
	IDToken     string
	Scope       string

	// ExpiresAt is absolute: the wall-clock instant the token response was
	// received plus its expires_in. It is never recomputed later.
	ExpiresAt time.Time
}

// Claims represents identity claims from a verified ID token.
type Claims map[string]interface{}

// Provider abstracts the identity-provider operations the flow controller
// and resource client depend on.
type Provider interface {
	// Endpoints returns the discovered provider endpoints, performing
	// discovery on first use.
	Endpoints(ctx context.Context) (Endpoints, error)

	// AuthCodeURL builds the authorization redirect URL. An empty state
	// omits the state parameter.
	AuthCodeURL(ctx context.Context, state string) (string, error)

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*Token, error)

	// Verify checks the ID token's signature, issuer and audience and
	// returns its claims. Unverified claims are never exposed.
	Verify(ctx context.Context, rawIDToken string) (Claims, error)
}
