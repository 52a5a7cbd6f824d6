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
)

// DefaultProbeTimeout bounds a liveness probe. It is intentionally much
// shorter than the connect timeout: a probe against an established link
// either answers quickly or the link is dead.
const DefaultProbeTimeout = 2 * time.Second

// HealthChecker performs bounded-time liveness probes against tenant
// connections. The zero value is not usable; construct with NewHealthChecker.
type HealthChecker struct {
	probeTimeout time.Duration
}

// NewHealthChecker creates a HealthChecker with the given probe timeout.
// A non-positive timeout takes DefaultProbeTimeout.
func NewHealthChecker(probeTimeout time.Duration) *HealthChecker {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &HealthChecker{probeTimeout: probeTimeout}
}

// ProbeTimeout returns the configured probe bound.
func (h *HealthChecker) ProbeTimeout() time.Duration {
	return h.probeTimeout
}

// Check pings the connection under the probe timeout. A nil error means
// the connection can still serve requests.
func (h *HealthChecker) Check(ctx context.Context, conn Conn) error {
	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()
	return conn.Ping(probeCtx)
}
