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
Package gateway provides the Jazzam API gateway - the HTTP surface that
authenticates callers, resolves tenants and serves the lead-management
API on top of per-tenant databases.

# Overview

Every API request passes through the same pipeline:

  - Bearer token validation (JWT) producing a Principal
  - Tenant resolution: explicit override (X-Tenant-ID header, then
    tenant_id query parameter) falling back to the principal's tenant
  - Authorization against the system store: the tenant record must
    exist and be active, its role must permit access, and delegated
    principals must hold active team membership
  - Tenant connection acquisition through the tenant pool, with
    bounded retries and linear backoff for transient failures
  - Per-tenant rate limiting (Redis sliding window, in-process
    fallback, fail-open on Redis outage)

On success the handler sees the principal, the resolved tenant id and
a live tenant database connection in the request context:

	conn, ok := gateway.ConnFromContext(r.Context())

# Error Mapping

Authentication failures return 401, authorization failures 403, a
request with no resolvable tenant 400, and exhausted connection
retries a generic 503 that never carries connection details.

# Lifecycle

NewServer wires the pool, model registry, system store and rate
limiter from Config; Shutdown drains in-flight requests and then
closes every tenant connection before the process exits.
*/
package gateway
