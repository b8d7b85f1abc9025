package csrf

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}

	v := svc.Verify(token)
	if !v.Valid {
		t.Errorf("Verify() = %+v, want Valid=true", v)
	}
	if v.Expired {
		t.Errorf("fresh token reported expired")
	}
	if time.Since(v.IssuedAt) > time.Minute {
		t.Errorf("IssuedAt = %v, want ~now", v.IssuedAt)
	}
}

func TestTokensAreUnique(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := svc.Issue()
		if err != nil {
			t.Fatalf("Issue() error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true
	}
}

func TestTokenExpiry(t *testing.T) {
	ttl := time.Hour
	svc := NewTokenService("test-secret", ttl)

	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// Still valid right at the TTL boundary.
	v := svc.VerifyAt(token, time.Now().Add(ttl-time.Second))
	if !v.Valid {
		t.Errorf("token invalid just inside TTL: %+v", v)
	}

	v = svc.VerifyAt(token, time.Now().Add(ttl+time.Minute))
	if v.Valid {
		t.Errorf("token still valid past TTL")
	}
	if !v.Expired {
		t.Errorf("aged-out token not flagged Expired: %+v", v)
	}
	if v.IssuedAt.IsZero() {
		t.Errorf("expired token lost its IssuedAt")
	}
}

func TestTokenTampering(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// Flip one character of the payload; the signature no longer matches.
	b := []byte(token)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	v := svc.Verify(string(b))
	if v.Valid || v.Expired {
		t.Errorf("tampered payload accepted: %+v", v)
	}

	// Truncate the signature.
	idx := strings.LastIndexByte(token, '.')
	v = svc.Verify(token[:idx+3])
	if v.Valid {
		t.Errorf("truncated signature accepted")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if v := verifier.Verify(token); v.Valid {
		t.Errorf("token signed with a different secret accepted")
	}
}

func TestTokenMalformed(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	cases := []string{
		"",
		"no-dot-at-all",
		".",
		"payload.",
		".signature",
		"!!!not-base64!!!.0000000000000000000000000000000000000000000000000000000000000000",
	}
	for _, tc := range cases {
		if v := svc.Verify(tc); v.Valid || v.Expired {
			t.Errorf("Verify(%q) = %+v, want rejected as invalid", tc, v)
		}
	}
}

func TestTokenSignedGarbagePayload(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	// A correctly signed but structurally bogus payload must still fail.
	for _, inner := range []string{"garbage", "deadbeef.notanumber", "short.12345"} {
		payload := base64.RawURLEncoding.EncodeToString([]byte(inner))
		token := payload + "." + svc.sign(payload)
		if v := svc.Verify(token); v.Valid {
			t.Errorf("signed garbage payload %q accepted", inner)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	svc := NewTokenService("test-secret", 0)
	if svc.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", svc.TTL(), DefaultTTL)
	}
	svc = NewTokenService("test-secret", -time.Minute)
	if svc.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v for negative ttl, want %v", svc.TTL(), DefaultTTL)
	}
}
