package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/trustgate/trustgate/internal/model"
)

// Store persists API key records and the audit log. SQLite is the embedded
// default; Postgres (pgx) and MySQL are supported for deployments that
// already run one.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens the backing database and runs migrations.
//
// For the sqlite driver, dsn is ignored and the database lives under
// dataDir; an empty dataDir opens an in-memory database (used by tests).
// For postgres and mysql the dsn is passed through to the driver.
func NewStore(driver, dsn, dataDir string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}

	var db *sqlx.DB
	var err error

	switch driver {
	case "sqlite":
		if dataDir == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dataDir, "trustgate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		}
	case "postgres":
		db, err = sqlx.Connect("pgx", dsn)
	case "mysql":
		db, err = sqlx.Connect("mysql", dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

// keyRow maps 1:1 to the api_keys table. Permissions and the IP allow list
// are stored as JSON arrays in text columns.
type keyRow struct {
	ID              int64      `db:"id"`
	KeyName         string     `db:"key_name"`
	KeyHash         string     `db:"key_hash"`
	KeyPrefix       string     `db:"key_prefix"`
	PermissionsJSON string     `db:"permissions_json"`
	IsActive        bool       `db:"is_active"`
	ExpiresAt       *time.Time `db:"expires_at"`
	IPAllowJSON     string     `db:"ip_allow_json"`
	UsageCount      int64      `db:"usage_count"`
	LastUsed        *time.Time `db:"last_used"`
	RateLimit       int        `db:"rate_limit"`
	CreatedBy       string     `db:"created_by"`
	RotatedAt       *time.Time `db:"rotated_at"`
	RotatedBy       string     `db:"rotated_by"`
	CreatedAt       time.Time  `db:"created_at"`
}

func keyRowFromModel(k *model.APIKey) (keyRow, error) {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return keyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	ips, err := json.Marshal(k.IPAllowList)
	if err != nil {
		return keyRow{}, fmt.Errorf("marshal ip allow list: %w", err)
	}
	return keyRow{
		ID:              k.ID,
		KeyName:         k.KeyName,
		KeyHash:         k.KeyHash,
		KeyPrefix:       k.KeyPrefix,
		PermissionsJSON: string(perms),
		IsActive:        k.IsActive,
		ExpiresAt:       k.ExpiresAt,
		IPAllowJSON:     string(ips),
		UsageCount:      k.UsageCount,
		LastUsed:        k.LastUsed,
		RateLimit:       k.RateLimit,
		CreatedBy:       k.CreatedBy,
		RotatedAt:       k.RotatedAt,
		RotatedBy:       k.RotatedBy,
		CreatedAt:       k.CreatedAt,
	}, nil
}

func (r keyRow) toModel() (model.APIKey, error) {
	var perms []model.Permission
	if r.PermissionsJSON != "" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	var ips []string
	if r.IPAllowJSON != "" {
		if err := json.Unmarshal([]byte(r.IPAllowJSON), &ips); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal ip allow list: %w", err)
		}
	}
	return model.APIKey{
		ID:          r.ID,
		KeyName:     r.KeyName,
		KeyHash:     r.KeyHash,
		KeyPrefix:   r.KeyPrefix,
		Permissions: perms,
		IsActive:    r.IsActive,
		ExpiresAt:   r.ExpiresAt,
		IPAllowList: ips,
		UsageCount:  r.UsageCount,
		LastUsed:    r.LastUsed,
		RateLimit:   r.RateLimit,
		CreatedBy:   r.CreatedBy,
		RotatedAt:   r.RotatedAt,
		RotatedBy:   r.RotatedBy,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// auditRow maps 1:1 to the audit_log table.
type auditRow struct {
	ID              int64     `db:"id"`
	ActorID         *int64    `db:"actor_id"`
	ActorName       string    `db:"actor_name"`
	Action          string    `db:"action"`
	TargetType      string    `db:"target_type"`
	TargetID        string    `db:"target_id"`
	Status          string    `db:"status"`
	ChangesJSON     string    `db:"changes_json"`
	IPAddress       string    `db:"ip_address"`
	UserAgent       string    `db:"user_agent"`
	ErrorMessage    string    `db:"error_message"`
	AffectedRecords int       `db:"affected_records"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r auditRow) toModel() model.AuditEntry {
	var changes json.RawMessage
	if r.ChangesJSON != "" {
		changes = json.RawMessage(r.ChangesJSON)
	}
	return model.AuditEntry{
		ID:              r.ID,
		ActorID:         r.ActorID,
		ActorName:       r.ActorName,
		Action:          model.Action(r.Action),
		TargetType:      r.TargetType,
		TargetID:        r.TargetID,
		Status:          model.Status(r.Status),
		Changes:         changes,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		ErrorMessage:    r.ErrorMessage,
		AffectedRecords: r.AffectedRecords,
		CreatedAt:       r.CreatedAt,
	}
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// CreateKey inserts a new API key record. The key_hash must already be set
// (use HashKey). The ID and CreatedAt fields are populated after insert.
// New keys are always active; revocation is the only deactivation path.
func (s *Store) CreateKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()
	key.IsActive = true

	row, err := keyRowFromModel(key)
	if err != nil {
		return err
	}

	const cols = `(key_name, key_hash, key_prefix, permissions_json, is_active,
		expires_at, ip_allow_json, usage_count, rate_limit, created_by, created_at)`
	const vals = `(:key_name, :key_hash, :key_prefix, :permissions_json, :is_active,
		:expires_at, :ip_allow_json, :usage_count, :rate_limit, :created_by, :created_at)`

	if s.driver == "postgres" {
		// pgx does not support LastInsertId; use RETURNING instead.
		q, args, err := s.db.BindNamed(
			`INSERT INTO api_keys `+cols+` VALUES `+vals+` RETURNING id`, row)
		if err != nil {
			return fmt.Errorf("bind insert api key: %w", err)
		}
		if err := s.db.QueryRowxContext(ctx, q, args...).Scan(&key.ID); err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		return nil
	}

	result, err := s.db.NamedExecContext(ctx, `INSERT INTO api_keys `+cols+` VALUES `+vals, row)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetKeyForAuth performs the admission lookup: prefix match AND active AND
// unexpired, in a single indexed query. Precise rejection diagnostics come
// from GetKeyByPrefix afterwards.
func (s *Store) GetKeyForAuth(ctx context.Context, prefix string, now time.Time) (*model.APIKey, error) {
	const q = `SELECT * FROM api_keys
		WHERE key_prefix = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)`
	var row keyRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(q), prefix, true, now.UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key for auth: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetKeyByPrefix looks up a key by prefix alone, regardless of lifecycle
// state. Used to classify rejections (expired vs revoked vs unknown).
func (s *Store) GetKeyByPrefix(ctx context.Context, prefix string) (*model.APIKey, error) {
	var row keyRow
	q := s.db.Rebind(`SELECT * FROM api_keys WHERE key_prefix = ?`)
	if err := s.db.GetContext(ctx, &row, q, prefix); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListKeys returns all API key records, newest first.
func (s *Store) ListKeys(ctx context.Context) ([]model.APIKey, error) {
	var rows []keyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM api_keys ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// RevokeKey marks the key with the given prefix inactive. Revocation is
// terminal; there is no reactivation path.
func (s *Store) RevokeKey(ctx context.Context, prefix string) error {
	q := s.db.Rebind(`UPDATE api_keys SET is_active = ? WHERE key_prefix = ? AND is_active = ?`)
	result, err := s.db.ExecContext(ctx, q, false, prefix, true)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateKey swaps in a new hash and prefix for the record currently at
// prefix, recording who rotated it and when. The old raw key stops working
// immediately.
func (s *Store) RotateKey(ctx context.Context, prefix, newHash, newPrefix, rotatedBy string) error {
	q := s.db.Rebind(`UPDATE api_keys
		SET key_hash = ?, key_prefix = ?, rotated_at = ?, rotated_by = ?
		WHERE key_prefix = ? AND is_active = ?`)
	result, err := s.db.ExecContext(ctx, q, newHash, newPrefix, time.Now().UTC(), rotatedBy, prefix, true)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpKeyUsage increments the usage counter and stamps last_used. The value
// is a usage estimate, not a billing counter; callers issue this without
// waiting on it and may lose increments under races.
func (s *Store) BumpKeyUsage(ctx context.Context, id int64) error {
	q := s.db.Rebind(`UPDATE api_keys SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("bump api key usage: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// InsertAudit appends one audit entry. Entries are immutable once written.
func (s *Store) InsertAudit(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.AffectedRecords == 0 {
		e.AffectedRecords = 1
	}

	row := auditRow{
		ActorID:         e.ActorID,
		ActorName:       e.ActorName,
		Action:          string(e.Action),
		TargetType:      e.TargetType,
		TargetID:        e.TargetID,
		Status:          string(e.Status),
		ChangesJSON:     string(e.Changes),
		IPAddress:       e.IPAddress,
		UserAgent:       e.UserAgent,
		ErrorMessage:    e.ErrorMessage,
		AffectedRecords: e.AffectedRecords,
		CreatedAt:       e.CreatedAt,
	}

	const cols = `(actor_id, actor_name, action, target_type, target_id, status,
		changes_json, ip_address, user_agent, error_message, affected_records, created_at)`
	const vals = `(:actor_id, :actor_name, :action, :target_type, :target_id, :status,
		:changes_json, :ip_address, :user_agent, :error_message, :affected_records, :created_at)`

	if s.driver == "postgres" {
		q, args, err := s.db.BindNamed(`INSERT INTO audit_log `+cols+` VALUES `+vals+` RETURNING id`, row)
		if err != nil {
			return fmt.Errorf("bind insert audit entry: %w", err)
		}
		if err := s.db.QueryRowxContext(ctx, q, args...).Scan(&e.ID); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	}

	result, err := s.db.NamedExecContext(ctx, `INSERT INTO audit_log `+cols+` VALUES `+vals, row)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ListAudit returns entries matching the filter, newest first.
func (s *Store) ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, f.TargetType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC())
	}

	q := `SELECT * FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += fmt.Sprintf(" LIMIT %d", limit)
	if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries := make([]model.AuditEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toModel()
	}
	return entries, nil
}

// AuditStats aggregates entry counts by action and by actor over the given
// window. Nil bounds mean unbounded.
func (s *Store) AuditStats(ctx context.Context, from, to *time.Time) (*model.AuditStats, error) {
	var (
		where []string
		args  []interface{}
	)
	if from != nil {
		where = append(where, "created_at >= ?")
		args = append(args, from.UTC())
	}
	if to != nil {
		where = append(where, "created_at <= ?")
		args = append(args, to.UTC())
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	stats := &model.AuditStats{
		ByAction: make(map[model.Action]int64),
		ByActor:  make(map[string]int64),
	}

	type countRow struct {
		Key   string `db:"k"`
		Count int64  `db:"c"`
	}

	var byAction []countRow
	q := s.db.Rebind(`SELECT action AS k, COUNT(*) AS c FROM audit_log` + clause + ` GROUP BY action`)
	if err := s.db.SelectContext(ctx, &byAction, q, args...); err != nil {
		return nil, fmt.Errorf("audit stats by action: %w", err)
	}
	for _, r := range byAction {
		stats.ByAction[model.Action(r.Key)] = r.Count
		stats.Total += r.Count
	}

	var byActor []countRow
	q = s.db.Rebind(`SELECT actor_name AS k, COUNT(*) AS c FROM audit_log` + clause + ` GROUP BY actor_name`)
	if err := s.db.SelectContext(ctx, &byActor, q, args...); err != nil {
		return nil, fmt.Errorf("audit stats by actor: %w", err)
	}
	for _, r := range byActor {
		name := r.Key
		if name == "" {
			name = "(unauthenticated)"
		}
		stats.ByActor[name] = r.Count
	}

	return stats, nil
}

// PurgeAuditBefore deletes all entries created before cutoff and returns the
// number removed. This is the only way audit entries leave the store.
func (s *Store) PurgeAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.db.Rebind(`DELETE FROM audit_log WHERE created_at < ?`)
	result, err := s.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit rows affected: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashKey returns the hex-encoded SHA-256 hash of a raw API key string.
// One-way by construction: the raw key is never re-derivable from the store.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
