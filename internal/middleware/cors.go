package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins. origin is "*" or a comma-separated list.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := strings.TrimSpace(strings.Split(origin, ",")[0])

			if reqOrigin != "" && isAllowed(reqOrigin, origin) {
				allowed = reqOrigin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowed(reqOrigin, configured string) bool {
	for _, o := range strings.Split(configured, ",") {
		o = strings.TrimSpace(o)
		if o == "*" || o == reqOrigin {
			return true
		}
	}
	return false
}

// Origins returns the host patterns accepted for WebSocket upgrades.
func Origins(configured string) []string {
	var out []string
	for _, o := range strings.Split(configured, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, o)
	}
	return out
}
