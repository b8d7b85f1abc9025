// Package csrf implements the stateless CSRF defense: self-verifying signed
// tokens and request-origin validation. A token's validity is a pure function
// of its own contents, the signing secret, and the clock. There is no
// server-side token table and consequently no per-token revocation. Rotating
// the signing secret invalidates every outstanding token at once; that is
// the accepted kill switch for this scheme.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the maximum token age when none is configured.
const DefaultTTL = time.Hour

const nonceSize = 16

// TokenService issues and verifies signed CSRF tokens. It holds the signing
// secret and TTL immutably; all methods are safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given signing secret.
// A non-positive ttl falls back to DefaultTTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured maximum token age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh token: a 16-byte random nonce paired with the
// current millisecond timestamp, base64-encoded, then signed with
// HMAC-SHA256. The wire format is "payload.signature".
func (s *TokenService) Issue() (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	issuedAt := time.Now().UnixMilli()
	inner := hex.EncodeToString(nonce) + "." + strconv.FormatInt(issuedAt, 10)
	payload := base64.RawURLEncoding.EncodeToString([]byte(inner))
	return payload + "." + s.sign(payload), nil
}

// Verification is the result of checking a token. Expired is only set when
// the signature verified but the token aged out; a tampered or malformed
// token is just invalid.
type Verification struct {
	Valid    bool
	Expired  bool
	IssuedAt time.Time
}

// Verify checks token against the current time.
func (s *TokenService) Verify(token string) Verification {
	return s.VerifyAt(token, time.Now())
}

// VerifyAt checks token as of now. The signature is recomputed and compared
// in constant time before the payload is trusted at all.
func (s *TokenService) VerifyAt(token string, now time.Time) Verification {
	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return Verification{}
	}
	payload, sig := token[:idx], token[idx+1:]

	if !hmac.Equal([]byte(s.sign(payload)), []byte(sig)) {
		return Verification{}
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Verification{}
	}
	parts := strings.Split(string(raw), ".")
	if len(parts) != 2 {
		return Verification{}
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return Verification{}
	}
	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Verification{}
	}

	issuedAt := time.UnixMilli(millis)
	if now.Sub(issuedAt) > s.ttl {
		return Verification{Expired: true, IssuedAt: issuedAt}
	}
	return Verification{Valid: true, IssuedAt: issuedAt}
}

func (s *TokenService) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
