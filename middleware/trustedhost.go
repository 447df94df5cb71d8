package middleware

import (
	"net/http"
	"strings"
)

// TrustedHostMiddleware rejects requests whose Host header does not
// match one of the configured allowlist entries. "*" disables the
// check entirely. Runs outermost, before CORS, since a request from an
// untrusted host shouldn't even get a CORS-shaped response.
func TrustedHostMiddleware(allowedHosts []string) func(http.Handler) http.Handler {
	allowAll := false
	hosts := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		if h == "*" {
			allowAll = true
		}
		hosts[strings.ToLower(h)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowAll {
				next.ServeHTTP(w, r)
				return
			}
			host := strings.ToLower(r.Host)
			if idx := strings.LastIndex(host, ":"); idx != -1 {
				host = host[:idx]
			}
			if !hosts[host] {
				http.Error(w, `{"error":"forbidden","message":"host not allowed"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
