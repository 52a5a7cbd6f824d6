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
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jazzam_tenantdb_active_connections",
			Help: "Number of live tenant connections currently held by the pool",
		},
	)
	promAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jazzam_tenantdb_acquire_total",
			Help: "Total acquire calls by result",
		},
		[]string{"result"}, // hit, miss, error
	)
	promEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jazzam_tenantdb_evictions_total",
			Help: "Total pool evictions by reason",
		},
		[]string{"reason"}, // idle, capacity, stale, explicit, shutdown
	)
	promConnectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jazzam_tenantdb_connect_duration_milliseconds",
			Help:    "Tenant connection creation time in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promActiveConnections)
	prometheus.MustRegister(promAcquireTotal)
	prometheus.MustRegister(promEvictionsTotal)
	prometheus.MustRegister(promConnectDuration)
}

const (
	acquireResultHit   = "hit"
	acquireResultMiss  = "miss"
	acquireResultError = "error"

	evictReasonIdle     = "idle"
	evictReasonCapacity = "capacity"
	evictReasonStale    = "stale"
	evictReasonExplicit = "explicit"
	evictReasonShutdown = "shutdown"
)
