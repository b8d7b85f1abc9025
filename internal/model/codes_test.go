package model

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCodeStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeCSRFOriginInvalid, http.StatusForbidden},
		{CodeCSRFTokenMissing, http.StatusForbidden},
		{CodeCSRFTokenExpired, http.StatusForbidden},
		{CodeCSRFTokenInvalid, http.StatusForbidden},
		{CodeInvalidAdminKey, http.StatusUnauthorized},
		{CodeExpiredKey, http.StatusUnauthorized},
		{CodeInactiveKey, http.StatusUnauthorized},
		{CodeInvalidKey, http.StatusUnauthorized},
		{CodeIPNotAllowed, http.StatusForbidden},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
		if tt.code.Message() == "" || tt.code.Message() == string(tt.code) {
			t.Errorf("%s has no English message", tt.code)
		}
		if tt.code.MessageVi() == "" || tt.code.MessageVi() == string(tt.code) {
			t.Errorf("%s has no Vietnamese message", tt.code)
		}
	}

	if got := Code("NO_SUCH_CODE").HTTPStatus(); got != http.StatusInternalServerError {
		t.Errorf("unknown code status = %d, want 500", got)
	}
}

func TestGateError(t *testing.T) {
	err := NewGateError(CodeExpiredKey, "")
	if err.Error() != "EXPIRED_KEY" {
		t.Errorf("Error() = %q", err.Error())
	}
	err = NewGateError(CodeInvalidKey, "prefix abcd1234")
	if err.Error() != "INVALID_KEY: prefix abcd1234" {
		t.Errorf("Error() = %q", err.Error())
	}

	var ge *GateError
	if !errors.As(error(err), &ge) || ge.Code != CodeInvalidKey {
		t.Errorf("errors.As failed on GateError")
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(CodeIPNotAllowed)
	if resp.Success {
		t.Error("error envelope marked success")
	}
	if resp.Error.Code != "IP_NOT_ALLOWED" || resp.Error.Message == "" || resp.Error.MessageVi == "" {
		t.Errorf("incomplete envelope: %+v", resp.Error)
	}
}

func TestAPIKeyLifecycleHelpers(t *testing.T) {
	now := time.Now()

	k := &APIKey{}
	if k.ExpiredAt(now) {
		t.Error("key with no expiry reported expired")
	}
	past := now.Add(-time.Minute)
	k.ExpiresAt = &past
	if !k.ExpiredAt(now) {
		t.Error("past expiry not reported")
	}
	future := now.Add(time.Minute)
	k.ExpiresAt = &future
	if k.ExpiredAt(now) {
		t.Error("future expiry reported expired")
	}

	unrestricted := &APIKey{}
	if !unrestricted.IPAllowed("203.0.113.7") {
		t.Error("empty allow list must admit any IP")
	}
	bound := &APIKey{IPAllowList: []string{"10.0.0.1", "10.0.0.2"}}
	if !bound.IPAllowed("10.0.0.2") {
		t.Error("listed IP rejected")
	}
	if bound.IPAllowed("10.0.0.3") {
		t.Error("unlisted IP admitted")
	}
}
