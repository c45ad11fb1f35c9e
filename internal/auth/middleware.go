package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"portfolio-backend/internal/authz"
	"portfolio-backend/internal/claims"

	"go.uber.org/zap"
)

// BearerMiddleware validates the access token for protected routes (stateless).
// Failures answer 401 with {"error": "..."}.
func BearerMiddleware(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			// Verify signature, issuer, audience and expiry
			userInfo, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				logger.Info("rejected bearer token",
					zap.String("path", r.URL.Path),
					zap.Bool("expired", errors.Is(err, ErrTokenExpired)),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userInfo)))
		})
	}
}

// RequirePermission answers 403 unless the caller verified by BearerMiddleware
// holds permission, either under the claims namespace or in the provider's
// plain "permissions" claim.
func RequirePermission(namespace, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := GetUserFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			id, cs := claims.FromProfile(user.Raw, namespace)
			if namespace != "" {
				_, plain := claims.FromProfile(user.Raw, "")
				cs = claims.Merge(cs, plain)
			}
			if !authz.HasPermission(claims.Authenticated(id, cs), permission) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractBearerToken extracts the token from an "Authorization: Bearer <token>" header
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
