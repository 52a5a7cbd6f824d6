// Copyright 2025 Jazzam
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenantdb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"jazzam/platform/shared/logger"
)

// ReadyState describes the lifecycle phase of a pool entry.
type ReadyState string

const (
	StateCreating  ReadyState = "creating"
	StateConnected ReadyState = "connected"
	StateStale     ReadyState = "stale"
	StateClosing   ReadyState = "closing"
	StateClosed    ReadyState = "closed"
)

// entry is one cached tenant connection. Owned exclusively by the pool;
// handlers only ever hold the Conn for the duration of a request.
type entry struct {
	tenantID   string
	conn       Conn
	createdAt  time.Time
	lastUsedAt time.Time
	state      ReadyState
}

// inflightCreate is a shared pending creation for one tenant key. The
// first caller installs it and creates; concurrent callers wait on done
// instead of each starting a new creation. Cleared once settled.
type inflightCreate struct {
	done chan struct{}
	conn Conn
	err  error
}

// TenantPool caches one live connection per tenant. It is a resource
// cache, not a checkout pool: there is no release call, connections stay
// open between requests until idle eviction, capacity (LRU) eviction,
// explicit close, or shutdown removes them.
//
// Pools are plain values constructed with NewTenantPool and injected into
// consumers; multiple isolated pools can coexist in one process.
type TenantPool struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	inflight map[string]*inflightCreate
	closed   bool

	factory ConnectionFactory
	health  *HealthChecker
	cfg     PoolConfig
	clock   clock.Clock
	logger  *logger.Logger

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	stopOnce    sync.Once
}

// TenantPoolOptions holds options for creating a TenantPool.
type TenantPoolOptions struct {
	// Factory creates tenant connections. Required.
	Factory ConnectionFactory

	// Health performs liveness probes. Defaults to a checker using
	// Config.ProbeTimeout.
	Health *HealthChecker

	// Config tunes capacity and timeouts. Zero fields take defaults.
	Config PoolConfig

	// Clock drives lastUsedAt bookkeeping and the idle sweep. Defaults
	// to the wall clock; tests inject a mock for deterministic time.
	Clock clock.Clock

	// Logger for pool operations.
	Logger *logger.Logger
}

// NewTenantPool creates a TenantPool and starts its idle sweep. The sweep
// is owned by the pool: it runs until Stop or CloseAll.
func NewTenantPool(opts TenantPoolOptions) (*TenantPool, error) {
	if opts.Factory == nil {
		return nil, errors.New("tenant pool requires a connection factory")
	}

	cfg := opts.Config.withDefaults()

	health := opts.Health
	if health == nil {
		health = NewHealthChecker(cfg.ProbeTimeout)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	log := opts.Logger
	if log == nil {
		log = logger.New("tenantdb")
	}

	p := &TenantPool{
		entries:   make(map[string]*entry),
		inflight:  make(map[string]*inflightCreate),
		factory:   opts.Factory,
		health:    health,
		cfg:       cfg,
		clock:     clk,
		logger:    log,
		sweepDone: make(chan struct{}),
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	p.sweepCancel = cancel
	go p.runSweep(sweepCtx)

	return p, nil
}

// Acquire returns a live connection for the tenant, creating one lazily
// on first access. A cached entry whose probe fails is discarded and
// transparently recreated; the caller never sees staleness as an error.
func (p *TenantPool) Acquire(ctx context.Context, tenantID string) (Conn, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, &ValidationError{Field: "tenantId", Message: "tenant id is required"}
	}

	// Fast path: cached entry with read lock
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, &ConnectionError{TenantID: tenantID, Op: "acquire", Message: "pool is closed"}
	}
	var (
		conn  Conn
		state ReadyState
		ok    bool
	)
	if e, exists := p.entries[tenantID]; exists {
		conn, state, ok = e.conn, e.state, true
	}
	p.mu.RUnlock()

	if ok && state == StateConnected {
		if err := p.health.Check(ctx, conn); err == nil {
			p.touch(tenantID)
			promAcquireTotal.WithLabelValues(acquireResultHit).Inc()
			return conn, nil
		}
		// A probe run under a dead caller context says nothing about the
		// connection; fail the request and keep the shared entry.
		if ctx.Err() != nil {
			return nil, wrapWaitError(tenantID, ctx.Err())
		}
		// Probe failed: discard the entry and fall through to creation.
		p.logger.Warn(tenantID, "", "Cached tenant connection failed probe, recreating", nil)
		p.evict(tenantID, conn, evictReasonStale)
	} else if ok {
		// Entry exists but is not usable; treat as a miss.
		p.evict(tenantID, conn, evictReasonStale)
	}

	return p.acquireSlow(ctx, tenantID)
}

// acquireSlow deduplicates concurrent first-access creations per tenant
// key: one caller creates, everyone else waits on the shared result.
func (p *TenantPool) acquireSlow(ctx context.Context, tenantID string) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &ConnectionError{TenantID: tenantID, Op: "acquire", Message: "pool is closed"}
	}

	// Double-check: another caller may have registered the entry while
	// we were between locks.
	if e, exists := p.entries[tenantID]; exists && e.state == StateConnected {
		e.lastUsedAt = p.clock.Now()
		conn := e.conn
		p.mu.Unlock()
		promAcquireTotal.WithLabelValues(acquireResultHit).Inc()
		return conn, nil
	}

	if fl, exists := p.inflight[tenantID]; exists {
		p.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, wrapWaitError(tenantID, ctx.Err())
		}
		if fl.err != nil {
			return nil, fl.err
		}
		p.touch(tenantID)
		return fl.conn, nil
	}

	fl := &inflightCreate{done: make(chan struct{})}
	p.inflight[tenantID] = fl
	p.mu.Unlock()

	conn, err := p.createAndRegister(ctx, tenantID)
	fl.conn, fl.err = conn, err

	p.mu.Lock()
	delete(p.inflight, tenantID)
	p.mu.Unlock()
	close(fl.done)

	return conn, err
}

// createAndRegister opens a connection under the connect timeout, probes
// it, registers the entry, then enforces capacity. Insertion happens
// before capacity eviction, so the pool can transiently hold one entry
// over MaxPoolSize while the LRU victim is selected; the victim is never
// the entry that triggered the insert.
func (p *TenantPool) createAndRegister(ctx context.Context, tenantID string) (Conn, error) {
	promAcquireTotal.WithLabelValues(acquireResultMiss).Inc()

	start := p.clock.Now()
	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.factory(connectCtx, tenantID)
	cancel()
	if err != nil {
		promAcquireTotal.WithLabelValues(acquireResultError).Inc()
		err = normalizeCreateError(tenantID, "connect", err)
		p.logger.Warn(tenantID, "", "Tenant connection creation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	// Verify liveness before registering.
	if err := p.health.Check(ctx, conn); err != nil {
		_ = conn.Close(context.Background())
		promAcquireTotal.WithLabelValues(acquireResultError).Inc()
		err = normalizeCreateError(tenantID, "probe", err)
		p.logger.Warn(tenantID, "", "New tenant connection failed probe", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	promConnectDuration.Observe(float64(p.clock.Since(start).Milliseconds()))

	now := p.clock.Now()
	e := &entry{
		tenantID:   tenantID,
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
		state:      StateConnected,
	}

	var victim *entry
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close(context.Background())
		return nil, &ConnectionError{TenantID: tenantID, Op: "acquire", Message: "pool is closed"}
	}
	p.entries[tenantID] = e
	if len(p.entries) > p.cfg.MaxPoolSize {
		victim = p.lruLocked(tenantID)
		if victim != nil {
			victim.state = StateClosing
			delete(p.entries, victim.tenantID)
		}
	}
	promActiveConnections.Set(float64(len(p.entries)))
	p.mu.Unlock()

	if victim != nil {
		p.closeEntryConn(victim, evictReasonCapacity)
	}

	p.logger.Info(tenantID, "", "Tenant connection established", map[string]interface{}{
		"database": conn.Name(),
	})
	return conn, nil
}

// lruLocked selects the entry with the smallest lastUsedAt, excluding the
// tenant whose insert triggered the eviction. Caller holds the write lock.
func (p *TenantPool) lruLocked(excludeTenant string) *entry {
	var victim *entry
	for id, e := range p.entries {
		if id == excludeTenant {
			continue
		}
		if victim == nil || e.lastUsedAt.Before(victim.lastUsedAt) {
			victim = e
		}
	}
	return victim
}

// touch updates lastUsedAt for a cache hit. Separated from the read path
// so probes run without holding a write lock.
func (p *TenantPool) touch(tenantID string) {
	p.mu.Lock()
	if e, exists := p.entries[tenantID]; exists {
		e.lastUsedAt = p.clock.Now()
	}
	p.mu.Unlock()
}

// evict removes one entry and closes its connection. When conn is
// non-nil the entry is only removed if it still holds that connection,
// so a concurrent recreation is never torn down by a stale eviction.
func (p *TenantPool) evict(tenantID string, conn Conn, reason string) bool {
	p.mu.Lock()
	e, exists := p.entries[tenantID]
	if !exists || (conn != nil && e.conn != conn) {
		p.mu.Unlock()
		return false
	}
	if reason == evictReasonStale {
		e.state = StateStale
	}
	delete(p.entries, tenantID)
	promActiveConnections.Set(float64(len(p.entries)))
	p.mu.Unlock()

	p.closeEntryConn(e, reason)
	return true
}

// closeEntryConn closes a connection already removed from the map.
func (p *TenantPool) closeEntryConn(e *entry, reason string) {
	e.state = StateClosing
	if err := e.conn.Close(context.Background()); err != nil {
		p.logger.Warn(e.tenantID, "", "Failed to close tenant connection", map[string]interface{}{
			"error": err.Error(),
		})
	}
	e.state = StateClosed
	promEvictionsTotal.WithLabelValues(reason).Inc()
}

// Close force-closes and removes one tenant's entry. Used after an
// unrecoverable error on the connection. Returns false if no entry existed.
func (p *TenantPool) Close(tenantID string) bool {
	return p.evict(tenantID, nil, evictReasonExplicit)
}

// CloseAll stops the sweep, closes every entry concurrently and waits
// for completion. The pool rejects acquires afterwards.
func (p *TenantPool) CloseAll(ctx context.Context) {
	p.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	removed := make([]*entry, 0, len(p.entries))
	for id, e := range p.entries {
		e.state = StateClosing
		removed = append(removed, e)
		delete(p.entries, id)
	}
	promActiveConnections.Set(0)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range removed {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			if err := e.conn.Close(ctx); err != nil {
				p.logger.Warn(e.tenantID, "", "Failed to close tenant connection", map[string]interface{}{
					"error": err.Error(),
				})
			}
			e.state = StateClosed
			promEvictionsTotal.WithLabelValues(evictReasonShutdown).Inc()
		}(e)
	}
	wg.Wait()

	p.logger.Info("", "", "All tenant connections closed", map[string]interface{}{
		"count": len(removed),
	})
}

// Stop cancels the idle sweep and waits for it to exit. CloseAll calls
// it; it is also usable on its own in tests.
func (p *TenantPool) Stop() {
	p.stopOnce.Do(func() {
		p.sweepCancel()
		<-p.sweepDone
	})
}

// runSweep periodically removes idle entries until the pool stops.
func (p *TenantPool) runSweep(ctx context.Context) {
	defer close(p.sweepDone)

	ticker := p.clock.Ticker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepIdle()
		}
	}
}

// SweepIdle closes and removes every entry idle longer than the idle
// timeout, returning how many were evicted. The background sweep calls
// it on each tick; tests call it directly for deterministic time.
func (p *TenantPool) SweepIdle() int {
	now := p.clock.Now()

	var victims []*entry
	p.mu.Lock()
	for id, e := range p.entries {
		if now.Sub(e.lastUsedAt) > p.cfg.IdleTimeout {
			delete(p.entries, id)
			victims = append(victims, e)
		}
	}
	promActiveConnections.Set(float64(len(p.entries)))
	p.mu.Unlock()

	for _, e := range victims {
		p.closeEntryConn(e, evictReasonIdle)
	}

	if len(victims) > 0 {
		p.logger.Info("", "", "Idle sweep evicted tenant connections", map[string]interface{}{
			"evicted": len(victims),
		})
	}
	return len(victims)
}

// ConnectionStats is the per-entry diagnostic view.
type ConnectionStats struct {
	TenantID   string     `json:"tenantId"`
	ReadyState ReadyState `json:"readyState"`
	IdleTimeMs int64      `json:"idleTimeMs"`
	AgeMs      int64      `json:"ageMs"`
}

// PoolStats is the observability snapshot of the pool.
type PoolStats struct {
	ActiveConnections int               `json:"activeConnections"`
	MaxPoolSize       int               `json:"maxPoolSize"`
	Connections       []ConnectionStats `json:"connections"`
}

// Stats returns a point-in-time snapshot, sorted by tenant id for stable
// output.
func (p *TenantPool) Stats() PoolStats {
	now := p.clock.Now()

	p.mu.RLock()
	stats := PoolStats{
		ActiveConnections: len(p.entries),
		MaxPoolSize:       p.cfg.MaxPoolSize,
		Connections:       make([]ConnectionStats, 0, len(p.entries)),
	}
	for _, e := range p.entries {
		stats.Connections = append(stats.Connections, ConnectionStats{
			TenantID:   e.tenantID,
			ReadyState: e.state,
			IdleTimeMs: now.Sub(e.lastUsedAt).Milliseconds(),
			AgeMs:      now.Sub(e.createdAt).Milliseconds(),
		})
	}
	p.mu.RUnlock()

	sort.Slice(stats.Connections, func(i, j int) bool {
		return stats.Connections[i].TenantID < stats.Connections[j].TenantID
	})
	return stats
}

// normalizeCreateError maps raw factory and probe failures onto the pool
// error taxonomy, passing through errors that are already classified.
func normalizeCreateError(tenantID, op string, err error) error {
	var te *ConnectionTimeoutError
	var ce *ConnectionError
	if errors.As(err, &te) || errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionTimeoutError{TenantID: tenantID, Op: op, Cause: err}
	}
	return &ConnectionError{
		TenantID: tenantID,
		Op:       op,
		Message:  "failed to reach tenant database",
		Cause:    err,
	}
}

// wrapWaitError classifies a context failure while waiting on another
// caller's in-flight creation.
func wrapWaitError(tenantID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionTimeoutError{TenantID: tenantID, Op: "acquire", Cause: err}
	}
	return &ConnectionError{
		TenantID: tenantID,
		Op:       "acquire",
		Message:  "canceled while waiting for connection",
		Cause:    err,
	}
}
