package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/linguamate-backend/api/responses"
	"github.com/angelmondragon/linguamate-backend/internal/users"
	pkgAuth "github.com/angelmondragon/linguamate-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*pkgAuth.SessionClaims, error)
}

// Auth validates a bearer token and seeds the request context with the caller identity.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "token verifier not configured"))
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			identity := users.Identity{
				ExternalID: claims.UserID(),
				Email:      strings.TrimSpace(claims.Email),
				FullName:   claims.DisplayName(),
			}
			ctx := WithIdentity(r.Context(), identity)
			if logg != nil {
				ctx = logg.WithUserID(ctx, identity.ExternalID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
