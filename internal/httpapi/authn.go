package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/knowledgeshare/identity/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths reachable without a bearer token. Everything else requires the
// guard to verify the access token before dispatch.
var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/forgot-password",
	"/v1/auth/reset-password",
	"/v1/auth/verify-email",
	"/v1/auth/resend-verification",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth validates the bearer access token, extracts the identity claims,
// and attaches them to the request context. Signature failures and expiry
// are indistinguishable to the caller.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}

		claims, err := a.svc.Authenticate(token)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
