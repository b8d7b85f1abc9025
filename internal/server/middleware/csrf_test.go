package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trustgate/trustgate/internal/csrf"
	"github.com/trustgate/trustgate/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeErrorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

func newGate(t *testing.T, strict bool) (http.Handler, *csrf.TokenService) {
	t.Helper()
	tokens := csrf.NewTokenService("gate-test-secret", time.Hour)
	origins := csrf.NewOriginPolicy([]string{"https://app.example.com"}, "", strict)
	return CSRFGate(tokens, origins, testLogger())(okHandler()), tokens
}

func TestCSRFGateSafeMethodsBypass(t *testing.T) {
	gate, _ := newGate(t, true)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		r := httptest.NewRequest(method, "/api/v1/thing", nil)
		w := httptest.NewRecorder()
		gate.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("%s blocked with %d, want bypass", method, w.Code)
		}
	}
}

func TestCSRFGateRejectsBadOrigin(t *testing.T) {
	gate, tokens := newGate(t, true)

	token, err := tokens.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Even with a valid token, a bad origin is terminal in strict mode.
	r := httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
	r.Header.Set("Origin", "https://evil.example.net")
	r.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	gate.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != string(model.CodeCSRFOriginInvalid) {
		t.Errorf("code = %s, want CSRF_ORIGIN_INVALID", code)
	}
}

func TestCSRFGateTokenCodes(t *testing.T) {
	gate, tokens := newGate(t, true)

	issue := func() string {
		token, err := tokens.Issue()
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return token
	}

	tests := []struct {
		name     string
		token    string
		header   string
		wantCode model.Code
		wantOK   bool
	}{
		{"valid token", issue(), "X-CSRF-Token", "", true},
		{"valid token alt header", issue(), "X-XSRF-Token", "", true},
		{"missing token", "", "X-CSRF-Token", model.CodeCSRFTokenMissing, false},
		{"garbage token", "not.a.token", "X-CSRF-Token", model.CodeCSRFTokenInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
			r.Header.Set("Origin", "https://app.example.com")
			if tt.token != "" {
				r.Header.Set(tt.header, tt.token)
			}
			w := httptest.NewRecorder()
			gate.ServeHTTP(w, r)

			if tt.wantOK {
				if w.Code != http.StatusOK {
					t.Fatalf("status = %d, want 200", w.Code)
				}
				return
			}
			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", w.Code)
			}
			if code := decodeErrorCode(t, w.Body); code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestCSRFGateExpiredToken(t *testing.T) {
	tokens := csrf.NewTokenService("gate-test-secret", time.Nanosecond)
	origins := csrf.NewOriginPolicy([]string{"https://app.example.com"}, "", true)
	gate := CSRFGate(tokens, origins, testLogger())(okHandler())

	token, err := tokens.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(time.Millisecond)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	gate.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != string(model.CodeCSRFTokenExpired) {
		t.Errorf("code = %s, want CSRF_TOKEN_EXPIRED", code)
	}
}

func TestCSRFGatePermissiveUnknownOrigin(t *testing.T) {
	gate, tokens := newGate(t, false)

	token, err := tokens.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Unknown origin passes in permissive mode but the token is still required.
	r := httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
	r.Header.Set("Origin", "https://unknown.example.net")
	r.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	gate.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 in permissive mode", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/v1/thing", nil)
	r.Header.Set("Origin", "https://unknown.example.net")
	w = httptest.NewRecorder()
	gate.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("tokenless request passed in permissive mode: %d", w.Code)
	}
}

func TestCSRFGateExemptRoute(t *testing.T) {
	gate, _ := newGate(t, true)
	exempt := CSRFExempt(gate)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", nil)
	w := httptest.NewRecorder()
	exempt.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("exempt request blocked: %d", w.Code)
	}
}
