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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"jazzam/platform/shared/logger"
)

// DefaultRequestsPerMinute is the per-tenant rate limit when none is
// configured.
const DefaultRequestsPerMinute = 300

// RateLimiter enforces a per-tenant sliding-window limit backed by
// Redis, so the window is shared across replicas. When Redis is
// unavailable it degrades to a per-process fixed window, and on Redis
// command errors it fails open rather than blocking tenant traffic.
type RateLimiter struct {
	client *redis.Client
	limit  int
	logger *logger.Logger

	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a rate limiter. An empty redisURL or an
// unreachable Redis yields a limiter running on the in-process fallback.
func NewRateLimiter(redisURL string, limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}

	rl := &RateLimiter{
		limit:   limit,
		logger:  logger.New("gateway"),
		windows: make(map[string]*localWindow),
	}

	if redisURL == "" {
		return rl
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		rl.logger.Warn("", "", "Invalid Redis URL, rate limiting falls back to in-memory", map[string]interface{}{
			"error": err.Error(),
		})
		return rl
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rl.logger.Warn("", "", "Redis unreachable, rate limiting falls back to in-memory", map[string]interface{}{
			"error": err.Error(),
		})
		client.Close()
		return rl
	}

	rl.client = client
	return rl
}

// Close releases the Redis client, if any.
func (rl *RateLimiter) Close() error {
	if rl.client != nil {
		return rl.client.Close()
	}
	return nil
}

// Allow records one request for the tenant and reports whether it is
// within the limit.
func (rl *RateLimiter) Allow(ctx context.Context, tenantID string) error {
	if rl.client == nil {
		return rl.allowLocal(tenantID)
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", tenantID)

	pipe := rl.client.Pipeline()

	// Drop timestamps outside the one-minute window, count what remains,
	// then record this request.
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		// Fail open: tenant traffic must not depend on Redis health.
		rl.logger.Warn(tenantID, "", "Redis rate limit check failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(rl.limit) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count+1, rl.limit)
	}
	return nil
}

// allowLocal is the per-process fixed window fallback.
func (rl *RateLimiter) allowLocal(tenantID string) error {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[tenantID]
	if !exists || now.After(w.resetTime) {
		rl.windows[tenantID] = &localWindow{count: 1, resetTime: now.Add(time.Minute)}
		return nil
	}

	w.count++
	if w.count > rl.limit {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", w.count, rl.limit)
	}
	return nil
}

// Middleware rejects requests over the tenant's limit with 429. It runs
// after tenant resolution so the limit applies to the resolved tenant,
// not whatever the caller claimed.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := TenantIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, "rate limiter requires tenant resolution")
			return
		}

		if err := rl.Allow(r.Context(), tenantID); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
