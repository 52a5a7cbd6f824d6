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

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jazzam/platform/shared/logger"
	"jazzam/platform/systemstore"
	"jazzam/platform/tenantdb"
)

// Tenant override sources, in resolution order.
const (
	tenantHeader     = "X-Tenant-ID"
	tenantQueryParam = "tenant_id"
)

// Acquire retry policy. The backoff grows linearly: 500ms, then 1s.
const (
	maxAcquireAttempts = 3
	acquireBackoffStep = 500 * time.Millisecond
)

type contextKey string

const (
	tenantIDKey   contextKey = "jazzam.tenantID"
	tenantConnKey contextKey = "jazzam.tenantConn"
	principalKey  contextKey = "jazzam.principal"
)

// TenantIDFromContext returns the resolved tenant id for the request.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantIDKey).(string)
	return id, ok
}

// ConnFromContext returns the tenant database connection for the request.
func ConnFromContext(ctx context.Context) (tenantdb.Conn, bool) {
	conn, ok := ctx.Value(tenantConnKey).(tenantdb.Conn)
	return conn, ok
}

// PrincipalFromContext returns the authenticated principal for the request.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// TenantResolver authenticates the caller, resolves which tenant the
// request acts on, authorizes the pairing against the system store and
// attaches a live tenant database connection to the request context.
type TenantResolver struct {
	auth   *Authenticator
	store  *systemstore.Store
	pool   *tenantdb.TenantPool
	logger *logger.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTenantResolver creates the tenant resolution middleware.
func NewTenantResolver(auth *Authenticator, store *systemstore.Store, pool *tenantdb.TenantPool) *TenantResolver {
	return &TenantResolver{
		auth:   auth,
		store:  store,
		pool:   pool,
		logger: logger.New("gateway"),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Middleware wraps a handler with tenant resolution. On success the inner
// handler sees the principal, the tenant id and a live connection in the
// request context.
func (t *TenantResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := t.auth.PrincipalFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		tenantID := resolveTenantID(r, principal)
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "no tenant in request or token")
			return
		}

		if err := t.authorize(r.Context(), principal, tenantID); err != nil {
			writeAuthError(w, err)
			return
		}

		conn, err := t.acquireWithRetry(r.Context(), tenantID)
		if err != nil {
			t.writeAcquireError(w, tenantID, err)
			return
		}

		// Fire-and-forget: the audit trail never blocks request handling.
		go func() {
			auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.store.InsertAuditLog(auditCtx, systemstore.AuditEntry{
				TenantID: tenantID,
				Actor:    principal.UserID,
				Action:   "tenant.access",
				Detail:   r.Method + " " + r.URL.Path,
			}); err != nil {
				t.logger.Warn(tenantID, "", "Failed to write audit log", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
		ctx = context.WithValue(ctx, tenantConnKey, conn)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveTenantID applies the override order: header, then query
// parameter, then the principal's own tenant.
func resolveTenantID(r *http.Request, principal *Principal) string {
	if id := r.Header.Get(tenantHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get(tenantQueryParam); id != "" {
		return id
	}
	return principal.TenantID
}

// authorize verifies the principal may act on the tenant: the record must
// exist and be active, its role must permit direct access, and delegated
// principals must additionally hold active team membership.
func (t *TenantResolver) authorize(ctx context.Context, principal *Principal, tenantID string) error {
	record, err := t.store.GetTenant(ctx, tenantID)
	if err != nil {
		switch {
		case errors.Is(err, systemstore.ErrTenantNotFound):
			return &AuthorizationError{Status: http.StatusForbidden, Message: "unknown tenant"}
		case errors.Is(err, systemstore.ErrTenantDisabled):
			return &AuthorizationError{Status: http.StatusForbidden, Message: "tenant is disabled"}
		default:
			return err
		}
	}

	if !record.RolePermitted() {
		return &AuthorizationError{Status: http.StatusForbidden, Message: "tenant role does not permit access"}
	}

	if principal.Delegated || principal.TenantID != tenantID {
		member, err := t.store.IsTeamMember(ctx, tenantID, principal.UserID)
		if err != nil {
			return err
		}
		if !member {
			return &AuthorizationError{Status: http.StatusForbidden, Message: "not a member of this tenant"}
		}
	}

	return nil
}

// acquireWithRetry acquires the tenant connection with bounded retries.
// Validation failures surface immediately; transient connection failures
// are retried with a linearly growing backoff.
func (t *TenantResolver) acquireWithRetry(ctx context.Context, tenantID string) (tenantdb.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		conn, err := t.pool.Acquire(ctx, tenantID)
		if err == nil {
			return conn, nil
		}
		if tenantdb.IsValidation(err) || !tenantdb.IsRetryable(err) {
			return nil, err
		}
		lastErr = err

		if attempt < maxAcquireAttempts {
			backoff := time.Duration(attempt) * acquireBackoffStep
			t.logger.Warn(tenantID, "", "Tenant connection acquire failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   err.Error(),
			})
			if err := t.sleep(ctx, backoff); err != nil {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

// writeAcquireError maps acquire failures onto HTTP statuses. Exhausted
// retries become a generic 503; the typed error text is already sanitized
// but the client still only sees a stable generic message.
func (t *TenantResolver) writeAcquireError(w http.ResponseWriter, tenantID string, err error) {
	if tenantdb.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t.logger.ErrorWithCode(tenantID, "", "Tenant database unavailable", http.StatusServiceUnavailable, err, nil)
	writeError(w, http.StatusServiceUnavailable, "tenant database temporarily unavailable")
}

func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		writeError(w, authErr.Status, authErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "authorization check failed")
}
