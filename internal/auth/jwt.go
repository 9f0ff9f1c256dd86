package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier is the default TokenVerifier: a self-contained HS256 bearer
// token issuer/verifier, grounded on the teacher's JWTManager
// (NewJWTManager/ValidateAccessToken) but stripped to spec.md §4.10's
// narrower contract — verify and extract uid/emailVerified, nothing about
// tenants, scopes, or refresh tokens (spec.md §1 treats the identity
// provider as opaque; a production deployment swaps this for a real
// OIDC/identity-platform client behind the same TokenVerifier interface).
type JWTVerifier struct {
	signingKey []byte
	issuer     string
}

func NewJWTVerifier(signingKey string) *JWTVerifier {
	return &JWTVerifier{signingKey: []byte(signingKey), issuer: "governor"}
}

type governorClaims struct {
	jwt.RegisteredClaims
	EmailVerified bool `json:"email_verified"`
}

// Mint issues a bearer token for uid, expiring after ttl. Exercised by
// tests and local/dev tooling standing in for the real identity provider.
func (j *JWTVerifier) Mint(uid string, emailVerified bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := governorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		EmailVerified: emailVerified,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.signingKey)
}

// VerifyToken implements TokenVerifier.
func (j *JWTVerifier) VerifyToken(ctx context.Context, bearerToken string) (string, bool, error) {
	token, err := jwt.ParseWithClaims(bearerToken, &governorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", false, ErrInvalidToken
	}
	claims, ok := token.Claims.(*governorClaims)
	if !ok || claims.Issuer != j.issuer || claims.Subject == "" {
		return "", false, ErrInvalidToken
	}
	return claims.Subject, claims.EmailVerified, nil
}

// ExtractBearerToken pulls the token out of an Authorization header,
// kept verbatim from the teacher's helper of the same name.
func ExtractBearerToken(authHeader string) (string, error) {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", fmt.Errorf("auth: invalid authorization header format")
	}
	return authHeader[len(prefix):], nil
}
