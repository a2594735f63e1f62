// Package oidctest runs an in-process fake OIDC identity provider for
// tests: discovery, authorization, token, JWKS and userinfo endpoints, with
// knobs to misbehave in the ways the relying party must detect.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const keyID = "test-key-1"

// Provider is a disposable fake identity provider backed by an httptest
// server.
type Provider struct {
	t          *testing.T
	httpServer *httptest.Server
	privKey    *rsa.PrivateKey
	jwks       jose.JSONWebKeySet

	discoveryCount atomic.Int64

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	customClaims        map[string]interface{}
	expiresIn           int64
	scope               string
	omitScope           bool
	omitExpiresIn       bool
	omitIDToken         bool
	omitUserinfoFromDoc bool
	tokenStatus         int
}

// StartProvider creates and starts a fake provider. The server is shut down
// via t.Cleanup.
func StartProvider(t *testing.T) *Provider {
	t.Helper()

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &Provider{
		t:            t,
		privKey:      privKey,
		replySubject: "76a7a061-3c55-430d-8ee0-6f82ec42501f",
		replyUserinfo: map[string]interface{}{
			"name":  "Test Testesen",
			"email": "test@example.org",
		},
		expiresIn: 3600,
		scope:     "openid",
	}
	p.jwks = jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &privKey.PublicKey,
				KeyID:     keyID,
				Use:       "sig",
				Algorithm: string(jose.RS256),
			},
		},
	}

	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)

	return p
}

// URL returns the provider's base URL, which doubles as its issuer.
func (p *Provider) URL() string { return p.httpServer.URL }

// DiscoveryCount reports how many times the discovery document was fetched.
func (p *Provider) DiscoveryCount() int64 { return p.discoveryCount.Load() }

// SetClientCreds configures the client credentials the token endpoint
// expects via HTTP Basic authentication.
func (p *Provider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the code returned by the authorization
// endpoint and accepted by the token endpoint.
func (p *Provider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetAllowedRedirectURIs configures the redirect URIs the provider accepts.
// When empty, any redirect URI is accepted.
func (p *Provider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpiresIn configures the expires_in value of the token response.
func (p *Provider) SetExpiresIn(seconds int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetScope configures the scope value of the token response.
func (p *Provider) SetScope(scope string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scope = scope
}

// SetCustomClaims adds claims to the issued ID token.
func (p *Provider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetUserinfoReply configures the userinfo payload.
func (p *Provider) SetUserinfoReply(reply map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = reply
}

// OmitScope makes the token response omit scope.
func (p *Provider) OmitScope() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitScope = true
}

// OmitExpiresIn makes the token response omit expires_in.
func (p *Provider) OmitExpiresIn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitExpiresIn = true
}

// OmitIDToken makes the token response omit id_token.
func (p *Provider) OmitIDToken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitUserinfoEndpoint removes userinfo_endpoint from the discovery
// document.
func (p *Provider) OmitUserinfoEndpoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitUserinfoFromDoc = true
}

// FailToken makes the token endpoint reply with the given HTTP status.
func (p *Provider) FailToken(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
}

// SignIDToken issues a signed ID token with the provider's key. Tests use
// it to mint tokens with arbitrary claims.
func (p *Provider) SignIDToken(claims map[string]interface{}) string {
	p.t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: p.privKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	require.NoError(p.t, err)

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(p.t, err)
	return raw
}

func (p *Provider) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ServeHTTP implements the fake provider's endpoints.
func (p *Provider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		p.discoveryCount.Add(1)
		doc := map[string]interface{}{
			"issuer":                 p.URL(),
			"authorization_endpoint": p.URL() + "/authorize",
			"token_endpoint":         p.URL() + "/token",
			"userinfo_endpoint":      p.URL() + "/userinfo",
			"jwks_uri":               p.URL() + "/jwks",
		}
		if p.omitUserinfoFromDoc {
			delete(doc, "userinfo_endpoint")
		}
		p.writeJSON(w, doc)

	case "/authorize":
		qv := req.URL.Query()
		redirectURI := qv.Get("redirect_uri")
		if qv.Get("response_type") != "code" || redirectURI == "" {
			http.Error(w, "invalid_request", http.StatusBadRequest)
			return
		}
		location := redirectURI + "?code=" + url.QueryEscape(p.expectedAuthCode) +
			"&state=" + url.QueryEscape(qv.Get("state"))
		http.Redirect(w, req, location, http.StatusFound)

	case "/token":
		if p.tokenStatus != 0 {
			http.Error(w, `{"error":"server_error"}`, p.tokenStatus)
			return
		}
		username, password, ok := req.BasicAuth()
		if !ok || username != p.clientID || password != p.clientSecret {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if req.FormValue("grant_type") != "authorization_code" {
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		if req.FormValue("code") != p.expectedAuthCode {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		if len(p.allowedRedirectURIs) > 0 && !contains(p.allowedRedirectURIs, req.FormValue("redirect_uri")) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}

		reply := map[string]interface{}{
			"access_token": "at-" + p.expectedAuthCode,
			"token_type":   "Bearer",
			"scope":        p.scope,
			"expires_in":   p.expiresIn,
		}
		if p.omitScope {
			delete(reply, "scope")
		}
		if p.omitExpiresIn {
			delete(reply, "expires_in")
		}
		if !p.omitIDToken {
			claims := map[string]interface{}{
				"iss": p.URL(),
				"sub": p.replySubject,
				"aud": p.clientID,
				"exp": time.Now().Add(5 * time.Minute).Unix(),
				"iat": time.Now().Unix(),
			}
			for k, v := range p.customClaims {
				claims[k] = v
			}
			reply["id_token"] = p.SignIDToken(claims)
		}
		p.writeJSON(w, reply)

	case "/jwks":
		p.writeJSON(w, p.jwks)

	case "/userinfo":
		if req.Header.Get("Authorization") == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		p.writeJSON(w, p.replyUserinfo)

	default:
		http.NotFound(w, req)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
