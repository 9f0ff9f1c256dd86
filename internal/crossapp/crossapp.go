// Package crossapp implements C12: single-sign-on hops between apps
// sharing one account. Grounded on internal/auth/jwt.go's HMAC-signing
// and constant-time-compare idiom, but deliberately not a JWT — spec.md
// §4.11 calls for a compact, single-purpose token carrying only
// {uid, targetApp, iat, exp} with a short (5 min) TTL, not a general
// claims bag a resource server would otherwise have to parse.
package crossapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is spec.md §4.11's cross-app token lifetime.
const DefaultTTL = 5 * time.Minute

// ErrInvalidToken is returned for a malformed signature, or an expired one.
var ErrInvalidToken = errors.New("crossapp: invalid or expired token")

type payload struct {
	UID    string `json:"uid"`
	App    string `json:"app"`
	IssuedAt int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// Signer mints and verifies cross-app SSO tokens with a single shared
// secret, grounded on JWTVerifier's signingKey field.
type Signer struct {
	secret []byte
	clock  func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), clock: time.Now}
}

// Mint issues a token authorizing uid to establish a session in
// targetApp, valid for DefaultTTL.
func (s *Signer) Mint(uid, targetApp string) (string, error) {
	now := s.clock().UTC()
	p := payload{UID: uid, App: targetApp, IssuedAt: now.Unix(), ExpiresAt: now.Add(DefaultTTL).Unix()}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("crossapp: marshal: %w", err)
	}
	encodedBody := base64.RawURLEncoding.EncodeToString(body)
	sig := s.sign(encodedBody)
	return encodedBody + "." + sig, nil
}

// Verify checks the signature and expiry, returning the uid the token
// authorizes and the app it was minted for.
func (s *Signer) Verify(token string) (uid, targetApp string, err error) {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return "", "", ErrInvalidToken
	}
	encodedBody, sig := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(s.sign(encodedBody)), []byte(sig)) {
		return "", "", ErrInvalidToken
	}
	body, err := base64.RawURLEncoding.DecodeString(encodedBody)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", "", ErrInvalidToken
	}
	if s.clock().UTC().Unix() > p.ExpiresAt {
		return "", "", ErrInvalidToken
	}
	return p.UID, p.App, nil
}

func (s *Signer) sign(encodedBody string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedBody))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
