package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tenantSetting is the session setting the RLS policies read. An unset or
// empty value means a maintenance connection that sees every tenant's rows.
const tenantSetting = "app.current_tenant_id"

// TenantScope is a pooled connection pinned to one tenant. All repository
// methods run on it, which is what keeps content-hash cache lookups and OCR
// donor searches from ever crossing a tenant boundary.
type TenantScope struct {
	Conn *pgxpool.Conn

	// TenantID is uuid.Nil for maintenance scopes.
	TenantID uuid.UUID
}

// Close resets the tenant setting and releases the connection. It MUST be
// called, or the setting leaks to whoever draws this connection next.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET "+tenantSetting)
	s.Conn.Release()
}

// WithTenant acquires a connection and pins it to the tenant for RLS.
// Close the returned scope with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, tenantID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('"+tenantSetting+"', $1, false)", tenantID.String()); err != nil {
		conn.Release()
		return nil, err
	}

	return &TenantScope{Conn: conn, TenantID: tenantID}, nil
}

// WithoutTenant acquires a connection with no tenant pinned. Only the
// observer's healing and orphan-reset passes use this; everything
// request-driven goes through WithTenant.
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &TenantScope{Conn: conn}, nil
}
