// Copyright 2025 Jazzam
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package systemstore provides access to the shared PostgreSQL system
// database. Cross-tenant entities live here: company accounts, team
// membership and the audit trail. Per-tenant business data never does;
// that belongs to the tenant's own MongoDB database.
package systemstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// PostgreSQL driver registration.
	_ "github.com/lib/pq"

	"jazzam/platform/shared/logger"
)

// System store errors
var (
	// ErrTenantNotFound is returned when no tenant record exists for the id.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantDisabled is returned when the tenant record exists but is
	// disabled or suspended.
	ErrTenantDisabled = errors.New("tenant is disabled")
)

// Tenant roles. Only owners and admins may resolve a tenant directly;
// everyone else must appear in tenant_members.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// TenantRecord represents one company account row.
type TenantRecord struct {
	TenantID    string
	CompanyName string
	OwnerUserID string
	Role        string
	Status      string
	Enabled     bool
}

// RolePermitted reports whether the record's role may act as the tenant
// principal without a membership check.
func (r *TenantRecord) RolePermitted() bool {
	return r.Role == RoleOwner || r.Role == RoleAdmin
}

// AuditEntry is one immutable audit trail row.
type AuditEntry struct {
	TenantID string
	Actor    string
	Action   string
	Detail   string
}

// Store wraps the system database connection.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// New creates a Store around an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: logger.New("systemstore"),
	}
}

// Open connects to the system database and verifies the link with a
// bounded ping.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("system store requires a database URL")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open system database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach system database: %w", err)
	}

	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the system database link. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetTenant loads one tenant record. Returns ErrTenantNotFound when no
// row exists and ErrTenantDisabled when the account is not usable.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*TenantRecord, error) {
	query := `
		SELECT
			tenant_id,
			company_name,
			owner_user_id,
			role,
			status,
			enabled
		FROM tenants
		WHERE tenant_id = $1
	`

	var record TenantRecord
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&record.TenantID,
		&record.CompanyName,
		&record.OwnerUserID,
		&record.Role,
		&record.Status,
		&record.Enabled,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !record.Enabled || record.Status != "active" {
		return nil, ErrTenantDisabled
	}

	return &record, nil
}

// IsTeamMember reports whether the user is an active member of the
// tenant's team.
func (s *Store) IsTeamMember(ctx context.Context, tenantID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM tenant_members
			WHERE tenant_id = $1
			AND user_id = $2
			AND status = 'active'
		)
	`

	var member bool
	if err := s.db.QueryRowContext(ctx, query, tenantID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return member, nil
}

// InsertAuditLog appends one audit trail row. Failures are reported but
// callers typically log and continue; the audit trail must never block
// request handling.
func (s *Store) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	query := `
		INSERT INTO audit_logs (tenant_id, actor, action, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := s.db.ExecContext(ctx, query, entry.TenantID, entry.Actor, entry.Action, entry.Detail); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
