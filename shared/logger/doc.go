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

/*
Package logger emits single-line JSON log entries to stdout, carrying
the tenant and request identifiers that make multi-tenant traffic
traceable across components.

Every entry has a timestamp (RFC3339Nano), a level, the component name,
instance and container identifiers, and optional tenant id, request id
and free-form fields. One tenant's requests can be followed through the
gateway and the tenant pool by filtering on tenant_id alone.

# Usage

Each component constructs its own logger once:

	log := logger.New("tenantdb")

	log.Info("tenant-123", "req-456", "Connection established", map[string]interface{}{
	    "database": "jazzam_tenant-123",
	})

ErrorWithCode attaches an HTTP status and error text; InfoWithDuration
attaches a duration in milliseconds for latency tracking:

	log.ErrorWithCode("tenant-123", "req-456", "Acquire failed", 503, err, nil)
	log.InfoWithDuration("tenant-123", "req-456", "Request completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment

INSTANCE_ID names the deployment instance; the container name falls
back to HOSTNAME. Both are resolved once at construction.

Logger instances are safe for concurrent use.
*/
package logger
