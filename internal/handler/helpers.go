package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/trustgate/trustgate/internal/model"
)

// writeJSON serializes v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the standard success envelope.
func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, model.SuccessResponse{Success: true, Data: v})
}

// writeError writes a plain error envelope for non-gate failures
// (validation, storage). The code here is the HTTP status as text, keeping
// it out of the gate code space.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    http.StatusText(status),
			Message: message,
		},
	})
}

// readJSON decodes the request body into v, closing the body afterwards.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter with a default.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryTime extracts an RFC 3339 timestamp query parameter, nil if absent
// or unparseable.
func queryTime(r *http.Request, key string) *time.Time {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}
