package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gitea.com/go-chi/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feidelogin/authenticator"
	"feidelogin/database"
	authmiddleware "feidelogin/middleware"
	"feidelogin/models"
	"feidelogin/oidctest"
	"feidelogin/repositories"
	"feidelogin/services"
	"feidelogin/sessions"
)

// testApp wires the full request path: router, cookie sessions, identify
// middleware, flow controller, fake identity provider and fake groups API.
type testApp struct {
	idp          *oidctest.Provider
	server       *httptest.Server
	store        *sessions.MemoryStore
	repos        *repositories.Repositories
	groupsStatus atomic.Int32
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	app := &testApp{}
	app.groupsStatus.Store(http.StatusOK)

	app.idp = oidctest.StartProvider(t)
	app.idp.SetClientCreds("test-client", "test-secret")
	app.idp.SetExpectedAuthCode("XYZ")
	app.idp.SetExpiresIn(60)
	app.idp.SetScope("openid")

	groupsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := int(app.groupsStatus.Load())
		if status != http.StatusOK {
			http.Error(w, "groups API down", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": "fc:org:example.org", "displayName": "Example Org"}]`))
	}))
	t.Cleanup(groupsSrv.Close)

	// The app server must exist before the provider config (the redirect
	// URL embeds its address), so route through a late-bound handler.
	var handler http.Handler
	app.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(app.server.Close)

	provider, err := authenticator.NewOpenIDProvider(authenticator.Config{
		Issuer:       app.idp.URL(),
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  app.server.URL + "/redirect_uri",
		Scopes:       []string{"openid", "profile"},
	})
	require.NoError(t, err)
	app.idp.SetAllowedRedirectURIs(app.server.URL + "/redirect_uri")

	db, err := database.InitializeDatabase(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	app.repos = repositories.NewRepositories(db)

	app.store = sessions.NewMemoryStore()
	srvs := services.NewServices(app.repos, provider, groupsSrv.URL, nil)
	ctrl := NewControllers(provider, app.store, srvs)

	r := chi.NewRouter()
	sessionHandler, err := session.Sessioner(session.Options{
		Provider:    "memory",
		CookieName:  "feidelogin_session",
		Gclifetime:  3600,
		Maxlifetime: 3600,
	})
	require.NoError(t, err)
	r.Use(sessionHandler)
	r.Use(authmiddleware.Identify(app.store))
	r.Get("/", ctrl.Auth.Index)
	r.Get("/redirect_uri", ctrl.Auth.Callback)
	r.Get("/logout", ctrl.Auth.Logout)
	handler = r

	return app
}

// client returns an HTTP client with a cookie jar that follows redirects.
func (app *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// noRedirectClient returns a cookie-jar client that stops at redirects.
func (app *testApp) noRedirectClient(t *testing.T) *http.Client {
	c := app.client(t)
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// sessionID extracts the opaque session identifier from the cookie jar.
func (app *testApp) sessionID(t *testing.T, c *http.Client) string {
	t.Helper()
	u, err := url.Parse(app.server.URL)
	require.NoError(t, err)
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == "feidelogin_session" {
			return cookie.Value
		}
	}
	t.Fatal("session cookie not set")
	return ""
}

func TestIndex_AnonymousRedirectsToProvider(t *testing.T) {
	app := newTestApp(t)
	c := app.noRedirectClient(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	q := loc.Query()
	assert.Equal(t, app.idp.URL()+"/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, app.server.URL+"/redirect_uri", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestLoginFlow_EndToEnd(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload, 4)

	var accessToken string
	require.NoError(t, json.Unmarshal(payload[0]["access_token"], &accessToken))
	assert.Equal(t, "at-XYZ", accessToken)

	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(payload[1]["id_token"], &claims))
	assert.Equal(t, app.idp.URL(), claims["iss"])
	assert.NotEmpty(t, claims["sub"])

	var userinfo map[string]interface{}
	require.NoError(t, json.Unmarshal(payload[2]["userinfo"], &userinfo))
	assert.Equal(t, "Test Testesen", userinfo["name"])

	var groups []map[string]interface{}
	require.NoError(t, json.Unmarshal(payload[3]["mygroups"], &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "fc:org:example.org", groups[0]["id"])

	// The cached session expires sixty seconds after the exchange
	sid := app.sessionID(t, c)
	cached, ok := app.store.Get(sid)
	require.True(t, ok)
	assert.Equal(t, "at-XYZ", cached.AccessToken)
	assert.True(t, app.store.IsAuthenticated(sid, cached.ExpiresAt.Add(-time.Second)))
	assert.False(t, app.store.IsAuthenticated(sid, cached.ExpiresAt))

	// Audit trail recorded the flow
	require.Eventually(t, func() bool {
		entries, err := app.repos.Audit.ListBySession(sid)
		return err == nil && len(entries) >= 3
	}, time.Second, 10*time.Millisecond)
	entries, err := app.repos.Audit.ListBySession(sid)
	require.NoError(t, err)
	events := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	assert.Contains(t, events, models.EventLoginRedirect)
	assert.Contains(t, events, models.EventCallbackOK)
	assert.Contains(t, events, models.EventProtectedView)
}

func TestCallback_MissingCode(t *testing.T) {
	app := newTestApp(t)
	c := app.noRedirectClient(t)

	// Begin login to obtain a valid state nonce
	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = c.Get(app.server.URL + "/redirect_uri?state=" + url.QueryEscape(state))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "authorization code is missing")

	// The session store was left untouched
	sid := app.sessionID(t, c)
	_, ok := app.store.Get(sid)
	assert.False(t, ok)
	assert.False(t, app.store.IsAuthenticated(sid, time.Now()))
}

func TestCallback_InvalidState(t *testing.T) {
	app := newTestApp(t)
	c := app.noRedirectClient(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, err = c.Get(app.server.URL + "/redirect_uri?state=forged&code=XYZ")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sid := app.sessionID(t, c)
	_, ok := app.store.Get(sid)
	assert.False(t, ok)
}

func TestCallback_NoStateInSession(t *testing.T) {
	app := newTestApp(t)
	c := app.noRedirectClient(t)

	// Callback without ever starting a login
	resp, err := c.Get(app.server.URL + "/redirect_uri?code=XYZ")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	app := newTestApp(t)
	app.idp.FailToken(http.StatusInternalServerError)
	c := app.client(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The chain stops at the callback with an authentication failure
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	sid := app.sessionID(t, c)
	_, ok := app.store.Get(sid)
	assert.False(t, ok)
}

func TestIndex_ResourceFetchFailure(t *testing.T) {
	app := newTestApp(t)
	app.groupsStatus.Store(http.StatusServiceUnavailable)
	c := app.client(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Authentication succeeded but the downstream fetch did not; the
	// failure surfaces as a gateway error, never an empty payload
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "resource fetch failed")

	sid := app.sessionID(t, c)
	assert.True(t, app.store.IsAuthenticated(sid, time.Now()))
}

func TestIndex_ExpiredSessionRedirects(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Expire the cached session; the next observation treats it as
	// anonymous and starts a fresh login
	sid := app.sessionID(t, c)
	cached, ok := app.store.Get(sid)
	require.True(t, ok)
	cached.ExpiresAt = time.Now().Add(-time.Minute)
	app.store.Put(sid, cached)

	nc := app.noRedirectClient(t)
	nc.Jar = c.Jar
	resp, err = nc.Get(app.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp, err := c.Get(app.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sid := app.sessionID(t, c)
	require.True(t, app.store.IsAuthenticated(sid, time.Now()))

	resp, err = c.Get(app.server.URL + "/logout")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "You've logged out")
	assert.False(t, app.store.IsAuthenticated(sid, time.Now()))

	// Logging out an anonymous session is a no-op success
	resp, err = c.Get(app.server.URL + "/logout")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
