package permission

import (
	"context"
	"database/sql"
)

// Schema is the DDL of the table PostgresSource reads.
const Schema = `
CREATE TABLE IF NOT EXISTS permission_grants (
  tenant_id BIGINT NOT NULL,
  user_id   BIGINT NOT NULL,
  resource  TEXT   NOT NULL,
  action    TEXT   NOT NULL,
  PRIMARY KEY (tenant_id, user_id, resource, action)
)
`

// PostgresSource reads grants from Postgres through database/sql.
// Grants are managed outside this service; the source is read-only.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) HasPermission(ctx context.Context, k Key) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM permission_grants
  WHERE tenant_id = $1 AND user_id = $2 AND resource = $3 AND action = $4
)
`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, k.TenantID, k.UserID, k.Resource, k.Action).Scan(&ok); err != nil {
		return false, sourceErr(k, err)
	}
	return ok, nil
}
