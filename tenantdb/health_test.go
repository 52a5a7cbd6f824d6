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
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// slowConn blocks in Ping until its context is done.
type slowConn struct{}

func (c *slowConn) Name() string { return "jazzam_slow" }

func (c *slowConn) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *slowConn) Close(ctx context.Context) error { return nil }

func (c *slowConn) Database() *mongo.Database { return nil }

func TestHealthChecker_Defaults(t *testing.T) {
	h := NewHealthChecker(0)
	if h.ProbeTimeout() != DefaultProbeTimeout {
		t.Errorf("Expected default probe timeout %v, got %v", DefaultProbeTimeout, h.ProbeTimeout())
	}

	h = NewHealthChecker(500 * time.Millisecond)
	if h.ProbeTimeout() != 500*time.Millisecond {
		t.Errorf("Expected 500ms probe timeout, got %v", h.ProbeTimeout())
	}
}

func TestHealthChecker_Check(t *testing.T) {
	h := NewHealthChecker(time.Second)

	healthy := &poolMockConn{name: "jazzam_T1"}
	if err := h.Check(context.Background(), healthy); err != nil {
		t.Errorf("Expected healthy probe, got %v", err)
	}

	broken := &poolMockConn{name: "jazzam_T1", pingErr: errors.New("no primary")}
	if err := h.Check(context.Background(), broken); err == nil {
		t.Error("Expected probe failure for broken connection")
	}
}

func TestHealthChecker_BoundsSlowProbes(t *testing.T) {
	h := NewHealthChecker(20 * time.Millisecond)

	start := time.Now()
	err := h.Check(context.Background(), &slowConn{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected a timeout from a hung probe")
	}
	if elapsed > time.Second {
		t.Errorf("Probe was not bounded by its timeout, took %v", elapsed)
	}
}
