// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

const claimsKey contextKey = "access_claims"

const RoleAdmin = "admin"

type TokenVerifier interface {
	VerifyAccessToken(
		ctx context.Context,
		token string,
	) (*AccessTokenClaims, error)
}

// AccessTokenClaims is the verified subset of an access token that
// handlers are allowed to rely on. CoinBalance is a snapshot taken when the
// token was issued and is never used for charging.
type AccessTokenClaims struct {
	UserID      string
	Role        string
	Username    string
	CoinBalance int
}

// Authenticator rejects requests without a valid bearer token.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, true)
}

// OptionalAuth attaches claims when a bearer token is present. An invalid
// token is still rejected so a caller cannot downgrade to anonymous access
// by sending garbage.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, false)
}

func authenticate(
	verifier TokenVerifier,
	required bool,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				if required {
					core.JSONError(
						w,
						core.UnauthorizedError("missing authorization token"),
					)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				core.JSONError(w, tokenError(err))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Authenticator or OptionalAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims(r.Context())
		switch {
		case claims == nil:
			core.JSONError(w, core.UnauthorizedError("authentication required"))
		case claims.Role != RoleAdmin:
			core.JSONError(w, core.ForbiddenError("admin access required"))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func tokenError(err error) error {
	switch {
	case core.IsAppError(err):
		return err
	case errors.Is(err, core.ErrTokenExpired):
		return core.TokenExpiredError()
	default:
		return core.TokenInvalidError()
	}
}

// Claims returns the verified token claims, or nil for anonymous requests.
func Claims(ctx context.Context) *AccessTokenClaims {
	claims, _ := ctx.Value(claimsKey).(*AccessTokenClaims)
	return claims
}

func GetUserID(ctx context.Context) string {
	if claims := Claims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

func IsAuthenticated(ctx context.Context) bool {
	return Claims(ctx) != nil
}

func IsAdmin(ctx context.Context) bool {
	claims := Claims(ctx)
	return claims != nil && claims.Role == RoleAdmin
}
