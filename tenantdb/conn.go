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
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Conn is a live link to one tenant's isolated database. Implementations
// must be safe for concurrent use; the pool hands the same Conn to every
// request for a tenant while the entry stays live.
type Conn interface {
	// Name returns the tenant database name, derived from the tenant id
	// by the pool's Namer. It doubles as the connection identity for the
	// model cache.
	Name() string

	// Ping performs a lightweight round-trip against the tenant database.
	Ping(ctx context.Context) error

	// Close releases the underlying client. Safe to call more than once.
	Close(ctx context.Context) error

	// Database returns the tenant database handle for data operations.
	Database() *mongo.Database
}

// mongoConn wraps a mongo client scoped to a single tenant database.
type mongoConn struct {
	name   string
	client *mongo.Client
	db     *mongo.Database
}

func (c *mongoConn) Name() string {
	return c.name
}

func (c *mongoConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *mongoConn) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.Disconnect(disconnectCtx)
}

func (c *mongoConn) Database() *mongo.Database {
	return c.db
}
