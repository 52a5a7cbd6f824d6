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
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"jazzam/platform/shared/logger"
)

// ModelSchema declares the collection binding of a model. Schemas are
// immutable for the process lifetime; define them as package-level values
// and reuse them on every GetModel call.
type ModelSchema struct {
	// Collection is the collection name inside the tenant database.
	Collection string

	// Indexes are ensured once, the first time a handle for this schema
	// touches a tenant database.
	Indexes []mongo.IndexModel
}

// ModelHandle is a typed accessor bound to one (connection, schema) pair.
// Handles are cached by the ModelRegistry and shared across requests for
// the same tenant; all methods are safe for concurrent use.
type ModelHandle struct {
	name   string
	conn   Conn
	schema *ModelSchema

	indexOnce sync.Once
	indexErr  error
}

// Name returns the model name the handle was registered under.
func (h *ModelHandle) Name() string {
	return h.name
}

// Collection returns the bound collection in the tenant database.
func (h *ModelHandle) Collection() *mongo.Collection {
	return h.conn.Database().Collection(h.schema.Collection)
}

// EnsureIndexes creates the schema's indexes in the tenant database.
// Runs at most once per handle; data operations call it lazily.
func (h *ModelHandle) EnsureIndexes(ctx context.Context) error {
	h.indexOnce.Do(func() {
		if len(h.schema.Indexes) == 0 {
			return
		}
		_, h.indexErr = h.Collection().Indexes().CreateMany(ctx, h.schema.Indexes)
	})
	return h.indexErr
}

// InsertOne inserts a document and returns the generated id.
func (h *ModelHandle) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	if err := h.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("model %s: ensure indexes: %w", h.name, err)
	}
	res, err := h.Collection().InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("model %s: insert: %w", h.name, err)
	}
	return res.InsertedID, nil
}

// FindByID decodes the document with the given _id into out.
// Returns mongo.ErrNoDocuments if no document matches.
func (h *ModelHandle) FindByID(ctx context.Context, id interface{}, out interface{}) error {
	return h.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(out)
}

// Find decodes every document matching filter into out (a slice pointer).
func (h *ModelHandle) Find(ctx context.Context, filter interface{}, out interface{}) error {
	cursor, err := h.Collection().Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("model %s: find: %w", h.name, err)
	}
	return cursor.All(ctx, out)
}

// UpdateByID applies a $set update to the document with the given _id,
// reporting whether a document matched.
func (h *ModelHandle) UpdateByID(ctx context.Context, id interface{}, set interface{}) (bool, error) {
	res, err := h.Collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("model %s: update: %w", h.name, err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteByID removes the document with the given _id, reporting whether
// a document was deleted.
func (h *ModelHandle) DeleteByID(ctx context.Context, id interface{}) (bool, error) {
	res, err := h.Collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("model %s: delete: %w", h.name, err)
	}
	return res.DeletedCount > 0, nil
}

// Count returns the number of documents matching filter.
func (h *ModelHandle) Count(ctx context.Context, filter interface{}) (int64, error) {
	return h.Collection().CountDocuments(ctx, filter)
}

// ModelRegistry caches model handles per (connection identity, model
// name) so a handle is constructed at most once per pair. The registry
// shares the pool's Namer: cache keys derive from tenant database names,
// which lets ClearCache purge a tenant by id.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]*ModelHandle
	namer  Namer
	logger *logger.Logger
}

// NewModelRegistry creates an empty registry. The namer must be the same
// one the connection factory uses, so key derivation matches connection
// naming exactly.
func NewModelRegistry(namer Namer, log *logger.Logger) *ModelRegistry {
	if log == nil {
		log = logger.New("tenantdb")
	}
	return &ModelRegistry{
		models: make(map[string]*ModelHandle),
		namer:  namer,
		logger: log,
	}
}

// modelKey generates a cache key for a connection's model.
func modelKey(connName, modelName string) string {
	return connName + ":" + modelName
}

// GetModel returns the handle for (conn, name), constructing and caching
// it on first use. Construction is double-checked under the write lock,
// so concurrent callers for the same pair always receive the same handle.
//
// Handles are bound to the connection's identity, not just its database
// name: when the pool recreates a tenant connection after a probe
// failure, the key is unchanged but the cached handle still wraps the
// old, closed client. A hit whose connection differs from the argument
// is therefore rebuilt against the live connection.
func (r *ModelRegistry) GetModel(conn Conn, name string, schema *ModelSchema) (*ModelHandle, error) {
	if conn == nil {
		return nil, &ValidationError{Field: "connection", Message: "connection is required"}
	}
	if name == "" {
		return nil, &ValidationError{Field: "modelName", Message: "model name is required"}
	}
	if schema == nil || schema.Collection == "" {
		return nil, &ValidationError{Field: "schema", Message: "schema with a collection name is required"}
	}

	key := modelKey(conn.Name(), name)

	// Fast path: check cache with read lock
	r.mu.RLock()
	handle, exists := r.models[key]
	r.mu.RUnlock()
	if exists && handle.conn == conn {
		return handle, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine may have constructed it already.
	prev, had := r.models[key]
	if had && prev.conn == conn {
		return prev, nil
	}

	handle = &ModelHandle{
		name:   name,
		conn:   conn,
		schema: schema,
	}
	r.models[key] = handle

	r.logger.Debug("", "", "Registered model handle", map[string]interface{}{
		"model":    name,
		"database": conn.Name(),
		"rebound":  had,
	})
	return handle, nil
}

// ClearCache purges every cached handle whose key derives from the
// tenant's database name. Call it after a tenant connection is recreated
// so stale handles are never reused against a stale connection. Returns
// how many handles were purged.
func (r *ModelRegistry) ClearCache(tenantID string) int {
	prefix := r.namer(tenantID) + ":"

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key := range r.models {
		if strings.HasPrefix(key, prefix) {
			delete(r.models, key)
			purged++
		}
	}

	if purged > 0 {
		r.logger.Info(tenantID, "", "Cleared model cache for tenant", map[string]interface{}{
			"purged": purged,
		})
	}
	return purged
}

// Count returns the total number of cached handles.
func (r *ModelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
