package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/service"
)

// rateLimited writes the standard rejection envelope instead of httprate's
// plain-text default.
func rateLimited(w http.ResponseWriter, r *http.Request) {
	writeGateError(w, model.CodeRateLimited)
}

// RateLimitByIP limits requests per caller IP using a sliding window.
// Applied globally in front of everything, including the CSRF endpoint.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	)
}

// RateLimitByKey limits admin requests per API key. The key prefix is the
// rate-limit bucket — it is non-secret and stable across requests; callers
// without a key fall back to their IP bucket.
func RateLimitByKey(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				key = r.URL.Query().Get(adminKeyQueryParam)
			}
			if len(key) >= service.KeyPrefixLen {
				return key[:service.KeyPrefixLen], nil
			}
			return clientIP(r), nil
		}),
		httprate.WithLimitHandler(rateLimited),
	)
}
