package model

import "net/http"

// Code is a stable machine-readable rejection code. Clients branch on the
// code, never on the message text. The CSRF code space and the admin auth
// code space are disjoint so a client can always tell which gate rejected it.
type Code string

const (
	// CSRF gate rejections (always 403).
	CodeCSRFOriginInvalid Code = "CSRF_ORIGIN_INVALID"
	CodeCSRFTokenMissing  Code = "CSRF_TOKEN_MISSING"
	CodeCSRFTokenExpired  Code = "CSRF_TOKEN_EXPIRED"
	CodeCSRFTokenInvalid  Code = "CSRF_TOKEN_INVALID"

	// API-key gate rejections.
	CodeInvalidAdminKey Code = "INVALID_ADMIN_KEY" // no record for prefix
	CodeExpiredKey      Code = "EXPIRED_KEY"
	CodeInactiveKey     Code = "INACTIVE_KEY"
	CodeInvalidKey      Code = "INVALID_KEY" // prefix matched, hash did not
	CodeIPNotAllowed    Code = "IP_NOT_ALLOWED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeRateLimited      Code = "RATE_LIMITED"
)

// codeMessage pairs the English and Vietnamese texts for a rejection code.
// The platform this gate embeds in serves a bilingual audience; both texts
// ride along for logging and UX, the code is the contract.
type codeMessage struct {
	status int
	en     string
	vi     string
}

var codeTable = map[Code]codeMessage{
	CodeCSRFOriginInvalid: {http.StatusForbidden, "Request origin is not allowed", "Nguồn gốc yêu cầu không được phép"},
	CodeCSRFTokenMissing:  {http.StatusForbidden, "CSRF token is missing", "Thiếu mã CSRF"},
	CodeCSRFTokenExpired:  {http.StatusForbidden, "CSRF token has expired", "Mã CSRF đã hết hạn"},
	CodeCSRFTokenInvalid:  {http.StatusForbidden, "CSRF token is invalid", "Mã CSRF không hợp lệ"},
	CodeInvalidAdminKey:   {http.StatusUnauthorized, "Invalid admin key", "Khóa quản trị không hợp lệ"},
	CodeExpiredKey:        {http.StatusUnauthorized, "API key has expired", "Khóa API đã hết hạn"},
	CodeInactiveKey:       {http.StatusUnauthorized, "API key has been revoked", "Khóa API đã bị thu hồi"},
	CodeInvalidKey:        {http.StatusUnauthorized, "Invalid API key", "Khóa API không hợp lệ"},
	CodeIPNotAllowed:      {http.StatusForbidden, "Caller IP is not on the key's allow list", "Địa chỉ IP không nằm trong danh sách cho phép"},
	CodePermissionDenied:  {http.StatusForbidden, "Insufficient permissions", "Không đủ quyền"},
	CodeRateLimited:       {http.StatusTooManyRequests, "Too many requests", "Quá nhiều yêu cầu"},
}

// HTTPStatus returns the HTTP status a rejection with this code produces.
func (c Code) HTTPStatus() int {
	if m, ok := codeTable[c]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Message returns the English message for the code.
func (c Code) Message() string {
	if m, ok := codeTable[c]; ok {
		return m.en
	}
	return string(c)
}

// MessageVi returns the Vietnamese message for the code.
func (c Code) MessageVi() string {
	if m, ok := codeTable[c]; ok {
		return m.vi
	}
	return string(c)
}

// GateError is a terminal rejection from one of the gates. It carries the
// machine-readable code; Detail adds context for logs only and is never
// required for client handling.
type GateError struct {
	Code   Code
	Detail string
}

func (e *GateError) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Detail
}

// NewGateError builds a GateError for code with optional detail.
func NewGateError(code Code, detail string) *GateError {
	return &GateError{Code: code, Detail: detail}
}
