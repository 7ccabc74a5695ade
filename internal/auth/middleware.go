package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// New picks the OIDC authenticator when an issuer is configured and falls back to the
// shared-secret one.
func New(ctx context.Context, cfg config.AuthConfig) (Authenticator, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return NewOIDCAuthenticator(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	case cfg.JWTSecret != "":
		return NewHMACAuthenticator(cfg.JWTSecret), nil
	}
	return nil, fmt.Errorf("auth: set OIDC_ISSUER or JWT_SECRET")
}

// Middleware rejects requests without a valid bearer token and stores the caller's
// identity in the request context.
func Middleware(a Authenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}

			id, err := a.Authenticate(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", ErrMissingToken.Error())
				return
			}
			for _, role := range roles {
				if id.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteError(w, http.StatusForbidden, "Forbidden", "missing required role")
		})
	}
}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}
