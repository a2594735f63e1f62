package middleware

import (
	"net/http"
	"time"

	"gitea.com/go-chi/session"

	"feidelogin/sessions"
	"feidelogin/userctx"
)

// Identify resolves the browser session for each request and annotates the
// request context with the session identifier and its authentication state.
// The session identifier is minted by the cookie middleware; this is the
// only place handlers learn about it.
func Identify(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.GetSession(r)

			ctx := userctx.SetSessionID(r.Context(), sess.ID())
			ctx = userctx.SetAuthenticated(ctx, store.IsAuthenticated(sess.ID(), time.Now()))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
