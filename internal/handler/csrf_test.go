package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trustgate/trustgate/internal/csrf"
)

func TestIssueToken(t *testing.T) {
	tokens := csrf.NewTokenService("handler-test-secret", time.Hour)
	h := NewCSRFHandler(tokens, false)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	w := httptest.NewRecorder()
	h.IssueToken(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Token     string `json:"token"`
			CSRFToken string `json:"csrfToken"`
			ExpiresIn int64  `json:"expiresIn"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Errorf("success = false")
	}
	if resp.Data.Token == "" || resp.Data.Token != resp.Data.CSRFToken {
		t.Errorf("token fields inconsistent: %+v", resp.Data)
	}
	if resp.Data.ExpiresIn != time.Hour.Milliseconds() {
		t.Errorf("expiresIn = %d, want %d", resp.Data.ExpiresIn, time.Hour.Milliseconds())
	}

	// The issued token must verify.
	if v := tokens.Verify(resp.Data.Token); !v.Valid {
		t.Errorf("issued token does not verify: %+v", v)
	}

	// Header and cookie mirrors carry the same token.
	if got := w.Header().Get("X-CSRF-Token"); got != resp.Data.Token {
		t.Errorf("header token %q != body token", got)
	}
	cookies := w.Result().Cookies()
	var mirror *http.Cookie
	for _, c := range cookies {
		if c.Name == "XSRF-TOKEN" {
			mirror = c
		}
	}
	if mirror == nil {
		t.Fatal("XSRF-TOKEN cookie not set")
	}
	if mirror.Value != resp.Data.Token {
		t.Errorf("cookie token mismatch")
	}
	if mirror.HttpOnly {
		t.Errorf("mirror cookie must be readable by client code")
	}
	if mirror.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", mirror.SameSite)
	}
	if mirror.Secure {
		t.Errorf("Secure set outside production")
	}
}

func TestIssueTokenSecureCookie(t *testing.T) {
	tokens := csrf.NewTokenService("handler-test-secret", time.Hour)
	h := NewCSRFHandler(tokens, true)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	w := httptest.NewRecorder()
	h.IssueToken(w, r)

	for _, c := range w.Result().Cookies() {
		if c.Name == "XSRF-TOKEN" && !c.Secure {
			t.Errorf("production cookie not Secure")
		}
	}
}
