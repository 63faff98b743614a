package middleware

import (
	"net/http"
	"strings"

	"github.com/pathnote/pathnote/internal/api/models"
)

// ProblemTypeTLSRequired is returned when a plain HTTP request reaches a
// TLS-only deployment.
const ProblemTypeTLSRequired = "https://api.pathnote.app/problems/tls-required"

// SecurityConfig configures the Security middleware.
type SecurityConfig struct {
	// RequireTLS rejects requests the load balancer received over plain
	// HTTP and enables HSTS.
	RequireTLS bool
	// ExemptPrefixes are paths served over HTTP even when RequireTLS is set,
	// such as health probes.
	ExemptPrefixes []string
}

// Security adds response headers suitable for a JSON API and optionally
// enforces TLS using X-Forwarded-Proto. Requests without the header are
// treated as direct connections and allowed.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")

			if cfg.RequireTLS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

				proto := r.Header.Get("X-Forwarded-Proto")
				if proto != "" && proto != "https" && !exempt(r.URL.Path, cfg.ExemptPrefixes) {
					models.NewProblem(
						ProblemTypeTLSRequired,
						"TLS required",
						http.StatusForbidden,
						GetRequestID(r.Context()),
					).WithDetail("Location data is only accepted over HTTPS").WithInstance(r.URL.Path).Write(w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func exempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
