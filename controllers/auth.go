package controllers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"gitea.com/go-chi/session"

	"feidelogin/authenticator"
	"feidelogin/models"
	"feidelogin/services"
	"feidelogin/sessions"
)

// AuthController orchestrates the authorization-code flow: begin-login,
// callback handling and logout. It is the only writer to the session store.
type AuthController struct {
	provider authenticator.Provider
	store    sessions.Store
	services *services.Services
}

// NewAuthController creates the auth controller with its injected
// collaborators.
func NewAuthController(provider authenticator.Provider, store sessions.Store, services *services.Services) *AuthController {
	return &AuthController{
		provider: provider,
		store:    store,
		services: services,
	}
}

// Index serves the landing operation. Anonymous sessions are redirected to
// the identity provider to start the login flow; authenticated sessions get
// the protected identity view.
func (ac *AuthController) Index(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	if !ac.store.IsAuthenticated(sess.ID(), time.Now()) {
		ac.beginLogin(w, r)
		return
	}
	ac.serveProtected(w, r)
}

// beginLogin generates a one-time state nonce, saves it in the cookie
// session and redirects to the provider's authorization endpoint. No token
// state is persisted before the redirect; the only persisted transition
// happens at callback.
func (ac *AuthController) beginLogin(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	state, err := generateRandomState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Save the state in the session to validate in callback
	sess.Set("state", state)

	authURL, err := ac.provider.AuthCodeURL(r.Context(), state)
	if err != nil {
		http.Error(w, "Provider is unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ac.services.Audit.Record(r, models.EventLoginRedirect, "")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// serveProtected renders the authenticated identity view: access token,
// verified ID-token claims, userinfo payload and group memberships.
func (ac *AuthController) serveProtected(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	cached, ok := ac.store.Get(sess.ID())
	if !ok {
		http.Error(w, "Session not found", http.StatusUnauthorized)
		return
	}

	var claims authenticator.Claims
	if cached.IDToken != "" {
		var err error
		claims, err = ac.provider.Verify(r.Context(), cached.IDToken)
		if err != nil {
			http.Error(w, "Failed to verify ID Token: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	userinfo, err := ac.services.Resources.FetchUserInfo(r.Context(), cached.AccessToken)
	if err != nil {
		resourceError(w, err)
		return
	}

	mygroups, err := ac.services.Resources.FetchGroups(r.Context(), cached.AccessToken)
	if err != nil {
		resourceError(w, err)
		return
	}

	ac.services.Audit.Record(r, models.EventProtectedView, "")
	writeJSON(w, http.StatusOK, []map[string]interface{}{
		{"access_token": cached.AccessToken},
		{"id_token": claims},
		{"userinfo": userinfo},
		{"mygroups": mygroups},
	})
}

// Callback handles the provider redirect: it validates the one-time state
// nonce, exchanges the authorization code and stores the session. On any
// failure the session store is left untouched.
func (ac *AuthController) Callback(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	storedState := sess.Get("state")
	if storedState == nil {
		ac.services.Audit.Record(r, models.EventCallbackFailed, "state not found in session")
		http.Error(w, "State not found in session", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != storedState.(string) {
		ac.services.Audit.Record(r, models.EventCallbackFailed, "invalid state parameter")
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	// The nonce is one-time: gone after validation, pass or fail.
	sess.Delete("state")

	code := r.URL.Query().Get("code")
	if code == "" {
		ac.services.Audit.Record(r, models.EventCallbackFailed, authenticator.ErrMissingAuthorizationCode.Error())
		http.Error(w, authenticator.ErrMissingAuthorizationCode.Error(), http.StatusBadRequest)
		return
	}

	token, err := ac.provider.Exchange(r.Context(), code)
	if err != nil {
		ac.services.Audit.Record(r, models.EventCallbackFailed, err.Error())
		http.Error(w, "Failed to exchange authorization code for a token: "+err.Error(), http.StatusUnauthorized)
		return
	}

	ac.store.Put(sess.ID(), sessions.Session{
		AccessToken: token.AccessToken,
		IDToken:     token.IDToken,
		ExpiresAt:   token.ExpiresAt,
	})

	ac.services.Audit.Record(r, models.EventCallbackOK, "")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session's token state. Logging out an anonymous session
// is a no-op success.
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.GetSession(r)

	ac.store.Clear(sess.ID())

	ac.services.Audit.Record(r, models.EventLogout, "")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("You've logged out\n"))
}

// resourceError maps a failed downstream fetch to a gateway error so the
// caller can tell "logged in but upstream is down" from "not logged in".
func resourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrResourceFetch) {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// generateRandomState generates a random state value for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
