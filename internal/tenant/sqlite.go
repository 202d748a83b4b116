package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/overlay-relay/internal/relay"

	_ "modernc.org/sqlite"
)

const tenantsSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	code TEXT,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_code ON tenants(code) WHERE code IS NOT NULL AND code != '';
CREATE INDEX IF NOT EXISTS idx_tenants_username ON tenants(username COLLATE NOCASE);
`

// SQLiteRegistry resolves tenants from a SQLite database.
type SQLiteRegistry struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the tenants database at path.
func OpenSQLite(path string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tenants db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(tenantsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tenants schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteRegistry) Close() error {
	return s.db.Close()
}

// ResolveCode implements relay.TenantRegistry.
func (s *SQLiteRegistry) ResolveCode(ctx context.Context, code string) (relay.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, code, active FROM tenants WHERE code = ?`, code)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return relay.Tenant{}, fmt.Errorf("code %q: %w", code, relay.ErrTenantNotFound)
	}
	return t, err
}

// ResolveTenant implements relay.TenantRegistry, matching the ID first and
// then the username case-insensitively.
func (s *SQLiteRegistry) ResolveTenant(ctx context.Context, idOrUsername string) (relay.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, code, active FROM tenants
WHERE id = ? OR username = ? COLLATE NOCASE
ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
LIMIT 1`, idOrUsername, idOrUsername, idOrUsername)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return relay.Tenant{}, fmt.Errorf("tenant %q: %w", idOrUsername, relay.ErrTenantNotFound)
	}
	return t, err
}

// Upsert inserts or replaces a tenant.
func (s *SQLiteRegistry) Upsert(ctx context.Context, t relay.Tenant) error {
	t.ID = normalizeID(t)
	if t.ID == "" {
		return fmt.Errorf("tenant requires an id or username")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tenants(id, username, code, active) VALUES(?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET username=excluded.username, code=excluded.code, active=excluded.active`,
		t.ID, t.Username, t.Code, boolToInt(t.Active))
	if err != nil {
		return fmt.Errorf("upsert tenant %q: %w", t.ID, err)
	}
	return nil
}

// SetActive toggles a tenant's active flag.
func (s *SQLiteRegistry) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("update tenant %q: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes a tenant.
func (s *SQLiteRegistry) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tenant %q: %w", id, err)
	}
	return requireRow(res, id)
}

// List returns all tenants ordered by ID.
func (s *SQLiteRegistry) List(ctx context.Context) ([]relay.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, code, active FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []relay.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (relay.Tenant, error) {
	var (
		t      relay.Tenant
		code   sql.NullString
		active int
	)
	if err := row.Scan(&t.ID, &t.Username, &code, &active); err != nil {
		return relay.Tenant{}, err
	}
	t.Code = strings.TrimSpace(code.String)
	t.Active = active != 0
	return t, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tenant %q: %w", id, relay.ErrTenantNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface verification
var (
	_ relay.TenantRegistry = (*SQLiteRegistry)(nil)
	_ Lister               = (*SQLiteRegistry)(nil)
)
