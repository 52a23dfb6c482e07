package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const tokenCookieName = "of_token"

var (
	errTokenInvalid   = errors.New("token is invalid")
	errTenantIDAbsent = errors.New("token carries no tenant id")
)

// TokenVerifier validates HS256 access tokens and extracts the tenant
// identity from the tenant_id claim.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenVerifier{secret: []byte(secret)}, nil
}

// Verify parses the token and returns its tenant id.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	if v == nil {
		return "", errors.New("token verifier is not configured")
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", errTokenInvalid
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errTokenInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errTokenInvalid
	}

	tenantID, _ := claims["tenant_id"].(string)
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", errTenantIDAbsent
	}
	return tenantID, nil
}

// accessTokenFromRequest resolves the token from the auth cookie, the
// Authorization header, or the token query parameter, in that order.
func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token
		}
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
