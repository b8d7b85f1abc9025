package handler

import (
	"net/http"
	"strconv"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/server/middleware"
)

// AuditHandler exposes the read-only audit query surface for reporting
// tooling. Entries are never mutated or individually deleted through HTTP;
// aging out is the retention job's business.
type AuditHandler struct {
	store *config.Store
	sink  audit.Sink
}

// NewAuditHandler creates the handler.
func NewAuditHandler(store *config.Store, sink audit.Sink) *AuditHandler {
	return &AuditHandler{store: store, sink: sink}
}

// ListEntries returns entries matching the query filters.
// GET /api/v1/admin/audit?actor_id=&action=&target_type=&status=&from=&to=&limit=&offset=
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := auditFilterFromQuery(r)
	entries, err := h.store.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log: "+err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Stats returns counts grouped by action type and by actor.
// GET /api/v1/admin/audit/stats?from=&to=
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.AuditStats(r.Context(), queryTime(r, "from"), queryTime(r, "to"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate audit log: "+err.Error())
		return
	}
	writeData(w, http.StatusOK, stats)
}

// Export streams matching entries as a JSON document and records the export
// itself in the audit log.
// GET /api/v1/admin/audit/export
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := auditFilterFromQuery(r)
	if filter.Limit <= 0 || filter.Limit > 10000 {
		filter.Limit = 10000
	}
	entries, err := h.store.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export audit log: "+err.Error())
		return
	}

	actor := middleware.GetPrincipal(r.Context())
	meta := middleware.RequestMeta(r)
	e := model.AuditEntry{
		Action:          model.ActionExport,
		TargetType:      "audit_log",
		Status:          model.StatusSuccess,
		AffectedRecords: len(entries),
		IPAddress:       meta.IP,
		UserAgent:       meta.UserAgent,
	}
	if actor != nil {
		e.ActorID = &actor.KeyID
		e.ActorName = actor.KeyName
	}
	h.sink.Record(r.Context(), e)

	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
	writeJSON(w, http.StatusOK, entries)
}

func auditFilterFromQuery(r *http.Request) model.AuditFilter {
	filter := model.AuditFilter{
		Action:     model.Action(r.URL.Query().Get("action")),
		TargetType: r.URL.Query().Get("target_type"),
		Status:     model.Status(r.URL.Query().Get("status")),
		From:       queryTime(r, "from"),
		To:         queryTime(r, "to"),
		Limit:      queryInt(r, "limit", 100),
		Offset:     queryInt(r, "offset", 0),
	}
	if actorStr := r.URL.Query().Get("actor_id"); actorStr != "" {
		if id, err := strconv.ParseInt(actorStr, 10, 64); err == nil {
			filter.ActorID = &id
		}
	}
	return filter
}
