package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/server/middleware"
	"github.com/trustgate/trustgate/internal/service"
)

// KeyHandler manages the administrative API key records.
type KeyHandler struct {
	store *config.Store
	sink  audit.Sink
}

// NewKeyHandler creates the handler.
func NewKeyHandler(store *config.Store, sink audit.Sink) *KeyHandler {
	return &KeyHandler{store: store, sink: sink}
}

type createKeyRequest struct {
	KeyName     string     `json:"key_name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IPAllowList []string   `json:"ip_allow_list,omitempty"`
	RateLimit   int        `json:"rate_limit,omitempty"`
}

type createKeyResponse struct {
	ID          int64              `json:"id"`
	Key         string             `json:"key"` // shown exactly once
	KeyName     string             `json:"key_name"`
	KeyPrefix   string             `json:"key_prefix"`
	Permissions []model.Permission `json:"permissions"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CreateKey generates a new key. The raw key appears in this response and
// nowhere else, ever.
// POST /api/v1/admin/keys
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.KeyName == "" {
		writeError(w, http.StatusBadRequest, "key_name is required")
		return
	}
	perms, err := model.ParsePermissions(req.Permissions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rawKey, keyHash, keyPrefix, err := service.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key: "+err.Error())
		return
	}

	actor := middleware.GetPrincipal(r.Context())
	key := &model.APIKey{
		KeyName:     req.KeyName,
		KeyHash:     keyHash,
		KeyPrefix:   keyPrefix,
		Permissions: perms,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		IPAllowList: req.IPAllowList,
		RateLimit:   req.RateLimit,
		CreatedBy:   actor.KeyName,
	}
	if err := h.store.CreateKey(r.Context(), key); err != nil {
		h.recordKeyAction(r, actor, model.ActionCreate, keyPrefix, model.StatusFailed, nil, err.Error())
		writeError(w, http.StatusInternalServerError, "Failed to save key: "+err.Error())
		return
	}

	h.recordKeyAction(r, actor, model.ActionCreate, keyPrefix, model.StatusSuccess, nil, "")

	writeData(w, http.StatusCreated, createKeyResponse{
		ID:          key.ID,
		Key:         rawKey,
		KeyName:     key.KeyName,
		KeyPrefix:   key.KeyPrefix,
		Permissions: key.Permissions,
		ExpiresAt:   key.ExpiresAt,
		CreatedAt:   key.CreatedAt,
	})
}

// ListKeys returns every key record. Hashes never leave the store layer's
// model serialization.
// GET /api/v1/admin/keys
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list keys: "+err.Error())
		return
	}
	writeData(w, http.StatusOK, keys)
}

// RevokeKey deactivates a key by prefix. Terminal: revoked keys cannot be
// reactivated, only replaced.
// DELETE /api/v1/admin/keys/{prefix}
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	actor := middleware.GetPrincipal(r.Context())

	if err := h.store.RevokeKey(r.Context(), prefix); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No active key with prefix "+prefix)
			return
		}
		h.recordKeyAction(r, actor, model.ActionDelete, prefix, model.StatusFailed, nil, err.Error())
		writeError(w, http.StatusInternalServerError, "Failed to revoke key: "+err.Error())
		return
	}

	changes, _ := json.Marshal(map[string]interface{}{
		"is_active": map[string]bool{"before": true, "after": false},
	})
	h.recordKeyAction(r, actor, model.ActionDelete, prefix, model.StatusSuccess, changes, "")

	writeData(w, http.StatusOK, map[string]string{"key_prefix": prefix, "status": "revoked"})
}

type rotateKeyResponse struct {
	Key       string `json:"key"` // shown exactly once
	KeyPrefix string `json:"key_prefix"`
	OldPrefix string `json:"old_prefix"`
}

// RotateKey replaces a key's secret in place: new raw key, new hash, new
// prefix; permissions and lifecycle settings carry over. The old raw key
// stops working the moment this returns.
// POST /api/v1/admin/keys/{prefix}/rotate
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	actor := middleware.GetPrincipal(r.Context())

	rawKey, keyHash, newPrefix, err := service.GenerateKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key: "+err.Error())
		return
	}

	if err := h.store.RotateKey(r.Context(), prefix, keyHash, newPrefix, actor.KeyName); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No active key with prefix "+prefix)
			return
		}
		h.recordKeyAction(r, actor, model.ActionRotate, prefix, model.StatusFailed, nil, err.Error())
		writeError(w, http.StatusInternalServerError, "Failed to rotate key: "+err.Error())
		return
	}

	changes, _ := json.Marshal(map[string]interface{}{
		"key_prefix": map[string]string{"before": prefix, "after": newPrefix},
	})
	h.recordKeyAction(r, actor, model.ActionRotate, prefix, model.StatusSuccess, changes, "")

	writeData(w, http.StatusOK, rotateKeyResponse{
		Key:       rawKey,
		KeyPrefix: newPrefix,
		OldPrefix: prefix,
	})
}

func (h *KeyHandler) recordKeyAction(r *http.Request, actor *service.Principal, action model.Action, targetPrefix string, status model.Status, changes json.RawMessage, errMsg string) {
	meta := middleware.RequestMeta(r)
	e := model.AuditEntry{
		Action:       action,
		TargetType:   "api_key",
		TargetID:     targetPrefix,
		Status:       status,
		Changes:      changes,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ErrorMessage: errMsg,
	}
	if actor != nil {
		e.ActorID = &actor.KeyID
		e.ActorName = actor.KeyName
	}
	h.sink.Record(r.Context(), e)
}
