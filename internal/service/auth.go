// Package service implements the API-key admission gate: key generation,
// authentication, and capability-based authorization. Every decision,
// admit or any rejection, records exactly one audit entry.
package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/metrics"
	"github.com/trustgate/trustgate/internal/model"
)

// KeyPrefixLen is how many leading characters of the raw key are stored as
// the non-secret lookup index.
const KeyPrefixLen = 8

// Principal is the authenticated actor attached to a request after a
// successful admission.
type Principal struct {
	KeyID       int64
	KeyName     string
	Permissions []model.Permission
	UsageCount  int64
	RateLimit   int
}

// RequestMeta carries per-request forensic context into audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthService is the API-key gate. It owns no mutable state of its own; the
// store and audit sink are injected and safe for concurrent use.
type AuthService struct {
	store  *config.Store
	sink   audit.Sink
	logger *slog.Logger
}

// NewAuthService creates the gate with its store and audit sink.
func NewAuthService(store *config.Store, sink audit.Sink, logger *slog.Logger) *AuthService {
	return &AuthService{store: store, sink: sink, logger: logger}
}

// GenerateKey produces a new high-entropy raw key plus its stored form.
// The raw key is 32 random bytes hex-encoded (64 chars); the caller sees it
// exactly once. Only the SHA-256 hash and the 8-char prefix are persisted.
func GenerateKey() (rawKey, keyHash, keyPrefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate random key: %w", err)
	}
	rawKey = hex.EncodeToString(buf)
	return rawKey, config.HashKey(rawKey), rawKey[:KeyPrefixLen], nil
}

// Authenticate resolves a presented raw key to a Principal or a typed
// rejection. The admission lookup is one indexed query (prefix + active +
// unexpired); a miss triggers one prefix-only lookup so the rejection code
// distinguishes unknown, expired, and revoked keys. The prefix never
// authorizes anything: the full-hash comparison is mandatory.
func (s *AuthService) Authenticate(ctx context.Context, rawKey string, meta RequestMeta) (*Principal, error) {
	if len(rawKey) < KeyPrefixLen {
		detail := "key too short"
		if rawKey == "" {
			detail = "no key presented"
		}
		return nil, s.rejectLogin(ctx, nil, meta, model.CodeInvalidAdminKey, detail)
	}
	prefix := rawKey[:KeyPrefixLen]
	now := time.Now()

	key, err := s.store.GetKeyForAuth(ctx, prefix, now)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			s.recordLogin(ctx, nil, meta, model.StatusFailed, "key lookup error: "+err.Error())
			return nil, fmt.Errorf("key lookup: %w", err)
		}
		// Classify the miss for precise diagnostics. This second query runs
		// only on the rejection path.
		diag, diagErr := s.store.GetKeyByPrefix(ctx, prefix)
		switch {
		case diagErr == nil && diag.ExpiredAt(now):
			return nil, s.rejectLogin(ctx, diag, meta, model.CodeExpiredKey, "")
		case diagErr == nil && !diag.IsActive:
			return nil, s.rejectLogin(ctx, diag, meta, model.CodeInactiveKey, "")
		default:
			return nil, s.rejectLogin(ctx, nil, meta, model.CodeInvalidAdminKey, "no key for prefix "+prefix)
		}
	}

	// Defensive re-check of lifecycle state even though the lookup filters it.
	if key.ExpiredAt(now) {
		return nil, s.rejectLogin(ctx, key, meta, model.CodeExpiredKey, "")
	}
	if !key.IsActive {
		return nil, s.rejectLogin(ctx, key, meta, model.CodeInactiveKey, "")
	}

	candidate := config.HashKey(rawKey)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(key.KeyHash)) != 1 {
		return nil, s.rejectLogin(ctx, key, meta, model.CodeInvalidKey, "hash mismatch for prefix "+prefix)
	}

	if !key.IPAllowed(meta.IP) {
		return nil, s.rejectLogin(ctx, key, meta, model.CodeIPNotAllowed, "caller ip "+meta.IP)
	}

	// Usage accounting is a best-effort estimate; it must never serialize or
	// delay the admission path.
	keyID := key.ID
	go func() {
		if err := s.store.BumpKeyUsage(context.Background(), keyID); err != nil {
			s.logger.Warn("usage bump failed", "key_id", keyID, "error", err)
		}
	}()

	metrics.AuthDecisions.WithLabelValues("admit").Inc()
	s.sink.Record(ctx, model.AuditEntry{
		ActorID:    &key.ID,
		ActorName:  key.KeyName,
		Action:     model.ActionLogin,
		TargetType: "api_key",
		TargetID:   key.KeyPrefix,
		Status:     model.StatusSuccess,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return &Principal{
		KeyID:       key.ID,
		KeyName:     key.KeyName,
		Permissions: key.Permissions,
		UsageCount:  key.UsageCount + 1,
		RateLimit:   key.RateLimit,
	}, nil
}

// Authorize checks the principal's capability set for perm. Denials are
// logged with the attempted capability for forensics. A pass is not logged
// here; the completed action writes its own entry.
func (s *AuthService) Authorize(ctx context.Context, p *Principal, perm model.Permission, meta RequestMeta) error {
	if model.HasPermission(p.Permissions, perm) {
		return nil
	}
	metrics.PermissionDenials.WithLabelValues(string(perm)).Inc()
	s.sink.Record(ctx, model.AuditEntry{
		ActorID:      &p.KeyID,
		ActorName:    p.KeyName,
		Action:       model.ActionPermissionDenied,
		TargetType:   "permission",
		TargetID:     string(perm),
		Status:       model.StatusFailed,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ErrorMessage: "missing permission " + string(perm),
	})
	return model.NewGateError(model.CodePermissionDenied, string(perm))
}

// rejectLogin records the failed admission and returns the gate error.
func (s *AuthService) rejectLogin(ctx context.Context, key *model.APIKey, meta RequestMeta, code model.Code, detail string) error {
	metrics.AuthDecisions.WithLabelValues(string(code)).Inc()

	e := model.AuditEntry{
		Action:       model.ActionFailedLogin,
		TargetType:   "api_key",
		Status:       model.StatusFailed,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ErrorMessage: string(code),
	}
	if detail != "" {
		e.ErrorMessage += ": " + detail
	}
	if key != nil {
		e.ActorID = &key.ID
		e.ActorName = key.KeyName
		e.TargetID = key.KeyPrefix
	}
	s.sink.Record(ctx, e)

	return model.NewGateError(code, detail)
}

func (s *AuthService) recordLogin(ctx context.Context, actorID *int64, meta RequestMeta, status model.Status, msg string) {
	s.sink.Record(ctx, model.AuditEntry{
		ActorID:      actorID,
		Action:       model.ActionFailedLogin,
		TargetType:   "api_key",
		Status:       status,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		ErrorMessage: msg,
	})
}
