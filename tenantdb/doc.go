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

/*
Package tenantdb manages per-tenant database connections for the Jazzam
backend. Each tenant owns an isolated MongoDB database; this package
lazily creates, health-checks, reuses and evicts one connection per
tenant under a bounded capacity.

# Components

  - TenantPool: tenant id -> connection cache with liveness probing on
    reuse, per-key in-flight creation dedupe, idle sweep, and LRU
    capacity eviction. This is a cache, not a checkout pool: there is no
    release call and connections stay open between requests.
  - ConnectionFactory / NewMongoFactory: opens a connection to the
    tenant database. The database name comes from a single Namer
    template substitution, so tenant resource names can never collide.
  - HealthChecker: bounded-time ping, independent of the connect timeout.
  - ModelRegistry: caches typed collection handles per (connection,
    model name) pair so a handle is constructed at most once per live
    connection; a handle left over from a recreated connection is
    rebuilt on the next lookup.

# Usage

	namer, _ := tenantdb.NewTemplateNamer("jazzam_{tenant}")
	factory, _ := tenantdb.NewMongoFactory(tenantdb.MongoFactoryOptions{
	    URI:   os.Getenv("MONGO_URI"),
	    Namer: namer,
	})
	pool, _ := tenantdb.NewTenantPool(tenantdb.TenantPoolOptions{
	    Factory: factory,
	    Config:  tenantdb.LoadPoolConfigFromEnv(),
	})
	defer pool.CloseAll(context.Background())

	conn, err := pool.Acquire(ctx, tenantID)
	// handle ConnectionTimeoutError / ConnectionError with bounded retry

	registry := tenantdb.NewModelRegistry(namer, nil)
	leads, _ := registry.GetModel(conn, "Lead", leadSchema)

# Error taxonomy

ValidationError (bad tenant id, never retried), ConnectionTimeoutError
(creation or probe exceeded its bound), ConnectionError (network or auth
failure, sanitized of connection strings). A failed probe on a cached
entry is never surfaced: the pool discards the entry and recreates the
connection transparently.

# Concurrency

All types are safe for concurrent use. The idle sweep goroutine is owned
by the pool: started on construction, stopped by Stop or CloseAll. Tests
inject a mock clock to drive time deterministically.
*/
package tenantdb
