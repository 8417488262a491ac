package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mentorship/common/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errNoBearer = errors.New("bearer token missing")

// BearerIdentity validates an HS256 access token and stores its subject as the caller id.
func BearerIdentity(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := callerFromToken(r, secret)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid token", "path", r.URL.Path, "error", err)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

func callerFromToken(r *http.Request, secret []byte) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return uuid.Nil, errNoBearer
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(claims.Subject)
}
