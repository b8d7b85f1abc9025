package middleware

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/trustgate/trustgate/internal/model"
)

// writeGateError writes the standard rejection envelope for a gate code.
func writeGateError(w http.ResponseWriter, code model.Code) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	json.NewEncoder(w).Encode(model.NewErrorResponse(code))
}

// clientIP returns the caller's IP with any port stripped. The RealIP
// middleware upstream has already resolved proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
