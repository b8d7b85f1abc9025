package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// AdminKeyHeader is the header carrying the raw admin API key.
const AdminKeyHeader = "X-Admin-Key"

// adminKeyQueryParam is the fallback query parameter for clients that
// cannot set headers.
const adminKeyQueryParam = "api_key"

// Authenticate validates the request's admin API key and attaches the
// resulting Principal to the context. Rejections return 401 or 403 with the
// gate's machine-readable code; the protected handler never runs.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(AdminKeyHeader)
			if rawKey == "" {
				rawKey = r.URL.Query().Get(adminKeyQueryParam)
			}

			// An absent key still goes through the gate so the denial is
			// audited like any other failed login.
			meta := RequestMeta(r)
			principal, err := authSvc.Authenticate(r.Context(), rawKey, meta)
			if err != nil {
				var gateErr *model.GateError
				if errors.As(err, &gateErr) {
					writeGateError(w, gateErr.Code)
					return
				}
				http.Error(w, "authentication error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission enforces a capability after Authenticate. Denials are
// audited by the gate with the attempted capability name.
func RequirePermission(authSvc *service.AuthService, perm model.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeGateError(w, model.CodePermissionDenied)
				return
			}
			if err := authSvc.Authorize(r.Context(), principal, perm, RequestMeta(r)); err != nil {
				writeGateError(w, model.CodePermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil for unauthenticated requests.
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// RequestMeta builds the forensic context (caller IP, user agent) the gate
// records with every decision.
func RequestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
