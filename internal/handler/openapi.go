package handler

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPIHandler serves the gateway's API document. The doc is generated
// once at startup; it has no per-request state.
type OpenAPIHandler struct {
	doc *openapi3.T
}

// NewOpenAPIHandler wraps a generated document.
func NewOpenAPIHandler(doc *openapi3.T) *OpenAPIHandler {
	return &OpenAPIHandler{doc: doc}
}

// ServeSpec writes the document as JSON.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	data, err := h.doc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render spec: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
