package handler

import (
	"net/http"

	"github.com/trustgate/trustgate/internal/csrf"
)

// CSRFHandler serves token issuance for browser clients.
type CSRFHandler struct {
	tokens *csrf.TokenService
	secure bool // mark the mirror cookie Secure in production
}

// NewCSRFHandler creates the handler. secure controls the cookie's Secure
// attribute.
func NewCSRFHandler(tokens *csrf.TokenService, secure bool) *CSRFHandler {
	return &CSRFHandler{tokens: tokens, secure: secure}
}

// tokenResponse is the issuance payload. The token rides under both names
// for client-library compatibility.
type tokenResponse struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrfToken"`
	ExpiresIn int64  `json:"expiresIn"` // milliseconds
}

// IssueToken returns a fresh token in the body, the X-CSRF-Token response
// header, and a non-httpOnly cookie mirror. The cookie is a convenience
// channel for clients only: verification reads the request header, never
// the cookie, so validity does not depend on cookie presence.
// GET /api/v1/csrf-token
func (h *CSRFHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "XSRF-TOKEN",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		Secure:   h.secure,
		HttpOnly: false, // client code must be able to read the mirror
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("X-CSRF-Token", token)

	writeData(w, http.StatusOK, tokenResponse{
		Token:     token,
		CSRFToken: token,
		ExpiresIn: h.tokens.TTL().Milliseconds(),
	})
}
