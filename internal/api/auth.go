package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// credentials checks one shared secret carried either as a bearer token or
// as the raw value of a named header.
type credentials struct {
	scheme string // bearer or header
	token  []byte
	header string
}

// extract returns the presented secret, or "" when none was sent.
func (c credentials) extract(r *http.Request) string {
	val := r.Header.Get(c.header)
	if c.scheme != "bearer" {
		return val
	}
	if len(val) < len(bearerPrefix) || !strings.EqualFold(val[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(val[len(bearerPrefix):])
}

func (c credentials) valid(r *http.Request) bool {
	presented := c.extract(r)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), c.token) == 1
}

// authMiddleware rejects requests that do not present token. An empty token
// disables the check.
func authMiddleware(scheme, token, header string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	if header == "" {
		header = "Authorization"
	}
	creds := credentials{scheme: scheme, token: []byte(token), header: header}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Preflight requests never carry credentials.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !creds.valid(r) {
			if scheme == "bearer" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="toolgate"`)
			}
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
