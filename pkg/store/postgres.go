package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS applications (
	name                      TEXT PRIMARY KEY,
	base_url                  TEXT NOT NULL,
	openapi_path              TEXT NOT NULL DEFAULT '',
	domain                    TEXT NOT NULL DEFAULT '',
	include_unreachable_tools BOOLEAN NOT NULL DEFAULT FALSE,
	selected_operation_keys   TEXT[] NOT NULL DEFAULT '{}',
	enabled                   BOOLEAN NOT NULL DEFAULT TRUE,
	deleted                   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS servers (
	name                TEXT PRIMARY KEY,
	base_url            TEXT NOT NULL,
	domain              TEXT NOT NULL DEFAULT '',
	selected_tool_names TEXT[] NOT NULL DEFAULT '{}',
	enabled             BOOLEAN NOT NULL DEFAULT TRUE,
	deleted             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS tool_records (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	source_type        TEXT NOT NULL,
	owner_id           TEXT NOT NULL,
	name               TEXT NOT NULL,
	method             TEXT NOT NULL DEFAULT '',
	path               TEXT NOT NULL DEFAULT '',
	display_name       TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	registration_state TEXT NOT NULL,
	exposure_state     TEXT NOT NULL,
	last_discovered_at TIMESTAMPTZ,
	last_synced_at     TIMESTAMPTZ,
	sync_error         TEXT,
	enabled            BOOLEAN NOT NULL DEFAULT TRUE,
	deleted            BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (source_type, owner_id, name)
);

CREATE INDEX IF NOT EXISTS idx_tool_records_owner ON tool_records(owner_id);

CREATE TABLE IF NOT EXISTS access_policies (
	owner_id       TEXT NOT NULL,
	tool_id        TEXT NOT NULL,
	mode           TEXT NOT NULL,
	allowed_users  TEXT[] NOT NULL DEFAULT '{}',
	allowed_groups TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (owner_id, tool_id)
);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// PostgresConfig holds pool settings.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewPostgresStore connects, pings and applies the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

const appColumns = `name, base_url, openapi_path, domain, include_unreachable_tools, selected_operation_keys, enabled, deleted`

func scanApplication(row pgx.Row) (Application, error) {
	var a Application
	err := row.Scan(&a.Name, &a.BaseURL, &a.OpenAPIPath, &a.Domain, &a.IncludeUnreachableTools,
		&a.SelectedOperationKeys, &a.Enabled, &a.Deleted)
	return a, err
}

func (s *PostgresStore) ListEnabledApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appColumns+` FROM applications WHERE enabled AND NOT deleted ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var result []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetApplication(ctx context.Context, name string) (Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+appColumns+` FROM applications WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Application{}, fmt.Errorf("application %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Application{}, fmt.Errorf("get application %q: %w", name, err)
	}
	return a, nil
}

func (s *PostgresStore) UpsertApplication(ctx context.Context, a Application) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO applications (`+appColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			openapi_path = EXCLUDED.openapi_path,
			domain = EXCLUDED.domain,
			include_unreachable_tools = EXCLUDED.include_unreachable_tools,
			selected_operation_keys = EXCLUDED.selected_operation_keys,
			enabled = EXCLUDED.enabled,
			deleted = EXCLUDED.deleted`,
		a.Name, a.BaseURL, a.OpenAPIPath, a.Domain, a.IncludeUnreachableTools,
		nonNil(a.SelectedOperationKeys), a.Enabled, a.Deleted)
	if err != nil {
		return fmt.Errorf("upsert application %q: %w", a.Name, err)
	}
	return nil
}

const serverColumns = `name, base_url, domain, selected_tool_names, enabled, deleted`

func scanServer(row pgx.Row) (Server, error) {
	var srv Server
	err := row.Scan(&srv.Name, &srv.BaseURL, &srv.Domain, &srv.SelectedToolNames, &srv.Enabled, &srv.Deleted)
	return srv, err
}

func (s *PostgresStore) ListEnabledServers(ctx context.Context) ([]Server, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE enabled AND NOT deleted ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var result []Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		result = append(result, srv)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetServer(ctx context.Context, name string) (Server, error) {
	srv, err := scanServer(s.pool.QueryRow(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Server{}, fmt.Errorf("server %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Server{}, fmt.Errorf("get server %q: %w", name, err)
	}
	return srv, nil
}

func (s *PostgresStore) UpsertServer(ctx context.Context, srv Server) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			domain = EXCLUDED.domain,
			selected_tool_names = EXCLUDED.selected_tool_names,
			enabled = EXCLUDED.enabled,
			deleted = EXCLUDED.deleted`,
		srv.Name, srv.BaseURL, srv.Domain, nonNil(srv.SelectedToolNames), srv.Enabled, srv.Deleted)
	if err != nil {
		return fmt.Errorf("upsert server %q: %w", srv.Name, err)
	}
	return nil
}

const policyColumns = `owner_id, tool_id, mode, allowed_users, allowed_groups`

func scanPolicy(row pgx.Row) (AccessPolicy, error) {
	var p AccessPolicy
	var mode string
	err := row.Scan(&p.OwnerID, &p.ToolID, &mode, &p.AllowedUsers, &p.AllowedGroups)
	p.Mode = Mode(mode)
	return p, err
}

func (s *PostgresStore) ListPolicies(ctx context.Context, ownerIDs []string) ([]AccessPolicy, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM access_policies WHERE owner_id = ANY($1)`, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var result []AccessPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetPolicy(ctx context.Context, ownerID, toolID string) (AccessPolicy, error) {
	p, err := scanPolicy(s.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM access_policies WHERE owner_id = $1 AND tool_id = $2`, ownerID, toolID))
	if errors.Is(err, pgx.ErrNoRows) {
		return AccessPolicy{}, fmt.Errorf("policy %s/%s: %w", ownerID, toolID, ErrNotFound)
	}
	if err != nil {
		return AccessPolicy{}, fmt.Errorf("get policy %s/%s: %w", ownerID, toolID, err)
	}
	return p, nil
}

func (s *PostgresStore) InsertPolicy(ctx context.Context, p AccessPolicy) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO access_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, tool_id) DO NOTHING`,
		p.OwnerID, p.ToolID, string(p.Mode), nonNil(p.AllowedUsers), nonNil(p.AllowedGroups))
	if err != nil {
		return false, fmt.Errorf("insert policy %s/%s: %w", p.OwnerID, p.ToolID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdatePolicy(ctx context.Context, p AccessPolicy) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE access_policies SET mode = $3, allowed_users = $4, allowed_groups = $5
		WHERE owner_id = $1 AND tool_id = $2`,
		p.OwnerID, p.ToolID, string(p.Mode), nonNil(p.AllowedUsers), nonNil(p.AllowedGroups))
	if err != nil {
		return fmt.Errorf("update policy %s/%s: %w", p.OwnerID, p.ToolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy %s/%s: %w", p.OwnerID, p.ToolID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertPolicy(ctx context.Context, p AccessPolicy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, tool_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			allowed_users = EXCLUDED.allowed_users,
			allowed_groups = EXCLUDED.allowed_groups`,
		p.OwnerID, p.ToolID, string(p.Mode), nonNil(p.AllowedUsers), nonNil(p.AllowedGroups))
	if err != nil {
		return fmt.Errorf("upsert policy %s/%s: %w", p.OwnerID, p.ToolID, err)
	}
	return nil
}

func (s *PostgresStore) RemovePolicy(ctx context.Context, ownerID, toolID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM access_policies WHERE owner_id = $1 AND tool_id = $2`, ownerID, toolID); err != nil {
		return fmt.Errorf("remove policy %s/%s: %w", ownerID, toolID, err)
	}
	return nil
}

func (s *PostgresStore) ListToolRecords(ctx context.Context, filter ToolFilter) ([]ToolRecord, error) {
	return pgRecords{s.pool}.ListToolRecords(ctx, filter)
}

func (s *PostgresStore) UpsertToolRecord(ctx context.Context, rec ToolRecord) error {
	return pgRecords{s.pool}.UpsertToolRecord(ctx, rec)
}

func (s *PostgresStore) SoftDeleteToolRecord(ctx context.Context, source SourceType, ownerID, name string, at time.Time) error {
	return pgRecords{s.pool}.SoftDeleteToolRecord(ctx, source, ownerID, name, at)
}

// InTx runs fn inside a single database transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ToolRecords) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(pgRecords{tx})
	})
}

func (s *PostgresStore) DeleteOwner(ctx context.Context, ownerID string, hard bool) error {
	source, name, ok := SplitOwner(ownerID)
	if !ok {
		return fmt.Errorf("invalid owner id %q", ownerID)
	}
	table := "applications"
	if source == SourceMCP {
		table = "servers"
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var tag pgconn.CommandTag
		var err error
		if hard {
			tag, err = tx.Exec(ctx, `DELETE FROM `+table+` WHERE name = $1`, name)
		} else {
			tag, err = tx.Exec(ctx, `UPDATE `+table+` SET deleted = TRUE, enabled = FALSE WHERE name = $1`, name)
		}
		if err != nil {
			return fmt.Errorf("delete %s %q: %w", table, name, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s %q: %w", table, name, ErrNotFound)
		}

		if hard {
			if _, err := tx.Exec(ctx, `DELETE FROM tool_records WHERE owner_id = $1`, ownerID); err != nil {
				return fmt.Errorf("delete tool records: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM access_policies WHERE owner_id = $1`, ownerID); err != nil {
				return fmt.Errorf("delete policies: %w", err)
			}
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE tool_records SET deleted = TRUE, enabled = FALSE, exposure_state = $2
			WHERE owner_id = $1`, ownerID, string(ExposureRetired))
		if err != nil {
			return fmt.Errorf("retire tool records: %w", err)
		}
		return nil
	})
}

// pgRecords implements ToolRecords over a pool or a transaction.
type pgRecords struct{ q querier }

const recordColumns = `id::text, source_type, owner_id, name, method, path, display_name, description,
	registration_state, exposure_state, last_discovered_at, last_synced_at, COALESCE(sync_error, ''), enabled, deleted`

func (r pgRecords) ListToolRecords(ctx context.Context, filter ToolFilter) ([]ToolRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+recordColumns+` FROM tool_records
		WHERE ($1 = '' OR source_type = $1) AND ($2 = '' OR owner_id = $2)
		ORDER BY owner_id, name`, string(filter.Source), filter.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list tool records: %w", err)
	}
	defer rows.Close()

	var result []ToolRecord
	for rows.Next() {
		var rec ToolRecord
		var source, reg, exp string
		var discovered, synced *time.Time
		if err := rows.Scan(&rec.ID, &source, &rec.OwnerID, &rec.Name, &rec.Method, &rec.Path,
			&rec.DisplayName, &rec.Description, &reg, &exp, &discovered, &synced,
			&rec.SyncError, &rec.Enabled, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("scan tool record: %w", err)
		}
		rec.Source = SourceType(source)
		rec.RegistrationState = RegistrationState(reg)
		rec.ExposureState = ExposureState(exp)
		if discovered != nil {
			rec.LastDiscoveredAt = discovered.UTC()
		}
		if synced != nil {
			rec.LastSyncedAt = synced.UTC()
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r pgRecords) UpsertToolRecord(ctx context.Context, rec ToolRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tool_records (source_type, owner_id, name, method, path, display_name, description,
			registration_state, exposure_state, last_discovered_at, last_synced_at, sync_error, enabled, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14)
		ON CONFLICT (source_type, owner_id, name) DO UPDATE SET
			method = EXCLUDED.method,
			path = EXCLUDED.path,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			registration_state = EXCLUDED.registration_state,
			exposure_state = EXCLUDED.exposure_state,
			last_discovered_at = EXCLUDED.last_discovered_at,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_error = EXCLUDED.sync_error,
			enabled = EXCLUDED.enabled,
			deleted = EXCLUDED.deleted`,
		string(rec.Source), rec.OwnerID, rec.Name, rec.Method, rec.Path, rec.DisplayName, rec.Description,
		string(rec.RegistrationState), string(rec.ExposureState), nullTime(rec.LastDiscoveredAt),
		nullTime(rec.LastSyncedAt), rec.SyncError, rec.Enabled, rec.Deleted)
	if err != nil {
		return fmt.Errorf("upsert tool record %s/%s: %w", rec.OwnerID, rec.Name, err)
	}
	return nil
}

func (r pgRecords) SoftDeleteToolRecord(ctx context.Context, source SourceType, ownerID, name string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tool_records
		SET deleted = TRUE, enabled = FALSE, registration_state = $4, last_synced_at = $5
		WHERE source_type = $1 AND owner_id = $2 AND name = $3 AND NOT deleted`,
		string(source), ownerID, name, string(StateStale), at)
	if err != nil {
		return fmt.Errorf("soft delete tool record %s/%s: %w", ownerID, name, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tool_records WHERE source_type = $1 AND owner_id = $2 AND name = $3)`,
		string(source), ownerID, name).Scan(&exists); err != nil {
		return fmt.Errorf("check tool record %s/%s: %w", ownerID, name, err)
	}
	if !exists {
		return fmt.Errorf("tool %s/%s: %w", ownerID, name, ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
