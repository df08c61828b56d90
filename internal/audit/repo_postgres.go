package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema is the DDL of the table PostgresRepo appends to, one statement per element.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS audit_events (
  id            UUID        PRIMARY KEY,
  tenant_id     BIGINT      NOT NULL,
  type          TEXT        NOT NULL,
  actor_user_id BIGINT      NOT NULL DEFAULT 0,
  actor_role    TEXT        NOT NULL DEFAULT '',
  ip_address    TEXT        NOT NULL DEFAULT '',
  resource      TEXT        NOT NULL DEFAULT '',
  action        TEXT        NOT NULL DEFAULT '',
  message       TEXT        NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_tenant_created_idx ON audit_events (tenant_id, created_at DESC)`,
}

// PostgresRepo appends events to the audit_events table.
// The table is expected to reject UPDATE/DELETE for the service role.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: sqlx.NewDb(db, "pgx")}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, tenant_id, type, actor_user_id, actor_role, ip_address, resource, action, message, created_at
) VALUES (
  :id, :tenant_id, :type, :actor_user_id, :actor_role, :ip_address, :resource, :action, :message, :created_at
)
`
	if _, err := r.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID int64, limit int) ([]Event, error) {
	const q = `
SELECT id, tenant_id, type, actor_user_id, actor_role, ip_address, resource, action, message, created_at
FROM audit_events
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	var out []Event
	if err := r.db.SelectContext(ctx, &out, q, tenantID, limit); err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	return out, nil
}
