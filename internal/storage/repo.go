package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

const configColumns = "id, tenant_id, provider, enc_api_key, model_id, is_active, created_at, updated_at"

// UpsertConfiguration inserts or replaces a tenant's binding for one
// provider. Activating a binding deactivates the tenant's other providers so
// at most one configuration is active per tenant.
func (s *Store) UpsertConfiguration(ctx context.Context, c AIConfiguration) error {
	if c.TenantID == "" || c.Provider == "" {
		return fmt.Errorf("tenant id and provider are required")
	}

	q := s.sql.Insert("ai_configurations").
		Columns("tenant_id", "provider", "enc_api_key", "model_id", "is_active", "updated_at").
		Values(c.TenantID, c.Provider, c.EncryptedAPIKey, c.ModelID, c.IsActive, nowExpr(s.driver)).
		Suffix("ON CONFLICT(tenant_id, provider) DO UPDATE SET enc_api_key=excluded.enc_api_key, model_id=excluded.model_id, is_active=excluded.is_active, updated_at=excluded.updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build configuration upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert configuration: %w", err)
	}

	if c.IsActive {
		return s.deactivateOthers(ctx, c.TenantID, c.Provider)
	}
	return nil
}

func (s *Store) deactivateOthers(ctx context.Context, tenantID, keepProvider string) error {
	q := s.sql.Update("ai_configurations").
		Set("is_active", false).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.NotEq{"provider": keepProvider})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("deactivate other configurations: %w", err)
	}
	return nil
}

// GetActiveConfiguration returns the tenant's active provider binding.
func (s *Store) GetActiveConfiguration(ctx context.Context, tenantID string) (AIConfiguration, error) {
	q := s.sql.Select(configColumns).
		From("ai_configurations").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true}).
		OrderBy("updated_at DESC").
		Limit(1)
	return s.getConfiguration(ctx, q)
}

func (s *Store) GetConfigurationByProvider(ctx context.Context, tenantID, provider string) (AIConfiguration, error) {
	q := s.sql.Select(configColumns).
		From("ai_configurations").
		Where(sq.Eq{"tenant_id": tenantID, "provider": provider})
	return s.getConfiguration(ctx, q)
}

func (s *Store) getConfiguration(ctx context.Context, q sq.SelectBuilder) (AIConfiguration, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return AIConfiguration{}, fmt.Errorf("build configuration query: %w", err)
	}

	var c AIConfiguration
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&c.ID,
		&c.TenantID,
		&c.Provider,
		&c.EncryptedAPIKey,
		&c.ModelID,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AIConfiguration{}, ErrNotFound
		}
		return AIConfiguration{}, fmt.Errorf("get configuration: %w", err)
	}
	return c, nil
}

func (s *Store) ListConfigurations(ctx context.Context, tenantID string) ([]AIConfiguration, error) {
	q := s.sql.Select(configColumns).
		From("ai_configurations").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("updated_at DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list configurations query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	out := make([]AIConfiguration, 0)
	for rows.Next() {
		var c AIConfiguration
		if err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.Provider,
			&c.EncryptedAPIKey,
			&c.ModelID,
			&c.IsActive,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan configuration row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configuration rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteConfiguration(ctx context.Context, tenantID, provider string) error {
	q := s.sql.Delete("ai_configurations").Where(sq.Eq{"tenant_id": tenantID, "provider": provider})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete configuration query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEncryptedKey rewrites a stored blob in place, used by external
// re-encryption after a passphrase change.
func (s *Store) UpdateEncryptedKey(ctx context.Context, tenantID, provider, encryptedAPIKey string) error {
	q := s.sql.Update("ai_configurations").
		Set("enc_api_key", encryptedAPIKey).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"tenant_id": tenantID, "provider": provider})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update key query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update encrypted key: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
