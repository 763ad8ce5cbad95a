// Package api implements the dashboard REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth returns middleware that checks HTTP basic credentials.
// Missing credentials reject every request. Routes registered outside the
// middleware, such as /health, stay public.
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	configured := username != "" && password != ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !configured || !ok || !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="lorekeeper"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
