package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leadsync/internal/models"
)

var ErrTenantNotFound = errors.New("tenant not found")

const tenantColumns = `id, name, instance_id, account_id, pipeline_id, spreadsheet_id,
       sheet_mode, sheet_name, timezone, detect_product, write_status, paid_only,
       is_active, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*models.Tenant, error) {
	var t models.Tenant
	var instanceID, accountID, pipelineID, sheetName, timezone sql.NullString
	err := row.Scan(
		&t.ID, &t.Name, &instanceID, &accountID, &pipelineID, &t.SpreadsheetID,
		&t.SheetMode, &sheetName, &timezone,
		&t.Flags.DetectProduct, &t.Flags.WriteStatus, &t.Flags.PaidOnly,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Bindings.InstanceID = instanceID.String
	t.Bindings.AccountID = accountID.String
	t.Bindings.PipelineID = pipelineID.String
	t.SheetName = sheetName.String
	t.Timezone = timezone.String
	return &t, nil
}

// ListActiveTenants returns every active tenant for the resolver cache.
func (db *DB) ListActiveTenants(ctx context.Context) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE is_active = 1 ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (db *DB) GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = ?`
	t, err := scanTenant(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %d: %w", id, err)
	}
	return t, nil
}

// UpsertTenant inserts a tenant or updates it by id. Used by the admin
// surface and by the file-fallback seeding on startup.
func (db *DB) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	now := time.Now()
	if t.ID == 0 {
		query := `INSERT INTO tenants (name, instance_id, account_id, pipeline_id, spreadsheet_id,
                  sheet_mode, sheet_name, timezone, detect_product, write_status, paid_only,
                  is_active, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := db.ExecContext(ctx, query,
			t.Name, t.Bindings.InstanceID, t.Bindings.AccountID, t.Bindings.PipelineID,
			t.SpreadsheetID, t.SheetMode, t.SheetName, t.Timezone,
			t.Flags.DetectProduct, t.Flags.WriteStatus, t.Flags.PaidOnly,
			t.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("tenant insert id: %w", err)
		}
		t.ID = id
		t.CreatedAt = now
		t.UpdatedAt = now
		return nil
	}

	query := `INSERT INTO tenants (id, name, instance_id, account_id, pipeline_id, spreadsheet_id,
              sheet_mode, sheet_name, timezone, detect_product, write_status, paid_only,
              is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  instance_id = excluded.instance_id,
                  account_id = excluded.account_id,
                  pipeline_id = excluded.pipeline_id,
                  spreadsheet_id = excluded.spreadsheet_id,
                  sheet_mode = excluded.sheet_mode,
                  sheet_name = excluded.sheet_name,
                  timezone = excluded.timezone,
                  detect_product = excluded.detect_product,
                  write_status = excluded.write_status,
                  paid_only = excluded.paid_only,
                  is_active = excluded.is_active,
                  updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.Name, t.Bindings.InstanceID, t.Bindings.AccountID, t.Bindings.PipelineID,
		t.SpreadsheetID, t.SheetMode, t.SheetName, t.Timezone,
		t.Flags.DetectProduct, t.Flags.WriteStatus, t.Flags.PaidOnly,
		t.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant %d: %w", t.ID, err)
	}
	t.UpdatedAt = now
	return nil
}
