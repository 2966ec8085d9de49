package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/auth"
)

const authRealm = "commutedeck-admin"

type claimsKey struct{}

// AdminValidator validates admin bearer tokens.
type AdminValidator interface {
	ValidateAdmin(token string) (*auth.Claims, error)
}

// AdminAuth requires an admin bearer token. Missing or unusable tokens get a
// 401 with a WWW-Authenticate challenge; valid tokens without the admin role
// get a 403.
func AdminAuth(validator AdminValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				challenge(w, r, "", "missing authorization header")
				return
			}
			token, ok := bearerToken(header)
			if !ok {
				challenge(w, r, "invalid_request", "invalid authorization header format")
				return
			}

			claims, err := validator.ValidateAdmin(token)
			if err != nil {
				rejectToken(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbiddenRole):
		models.NewError(GetRequestID(r.Context()), "token is not authorized for admin endpoints").
			Write(w, http.StatusForbidden)
	case errors.Is(err, auth.ErrAccessTokenExpired):
		challenge(w, r, "invalid_token", "access token has expired")
	case errors.Is(err, auth.ErrInvalidAccessToken):
		challenge(w, r, "invalid_token", "invalid access token")
	case errors.Is(err, auth.ErrMissingSigningKey):
		challenge(w, r, "", "admin endpoints are disabled")
	default:
		challenge(w, r, "invalid_token", "authentication failed")
	}
}

// challenge writes a 401 with an RFC 6750 challenge. code is left out of the
// header when the request carried no credentials.
func challenge(w http.ResponseWriter, r *http.Request, code, message string) {
	value := `Bearer realm="` + authRealm + `"`
	if code != "" {
		value += `, error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", value)
	models.NewError(GetRequestID(r.Context()), message).Write(w, http.StatusUnauthorized)
}

// GetClaims returns the validated admin claims, or nil outside AdminAuth.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// GetSubject returns the authenticated token subject, or "".
func GetSubject(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
