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
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Env Config Tests ---

func TestLoadPoolConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"MAX_POOL_SIZE", "IDLE_TIMEOUT", "SWEEP_INTERVAL", "CONNECT_TIMEOUT", "PROBE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := LoadPoolConfigFromEnv()
	if cfg != DefaultPoolConfig() {
		t.Errorf("Expected defaults with empty env, got %+v", cfg)
	}
}

func TestLoadPoolConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("MAX_POOL_SIZE", "7")
	t.Setenv("IDLE_TIMEOUT", "3m")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("CONNECT_TIMEOUT", "4s")
	t.Setenv("PROBE_TIMEOUT", "1500ms")

	cfg := LoadPoolConfigFromEnv()
	if cfg.MaxPoolSize != 7 {
		t.Errorf("Expected MaxPoolSize 7, got %d", cfg.MaxPoolSize)
	}
	if cfg.IdleTimeout != 3*time.Minute {
		t.Errorf("Expected IdleTimeout 3m, got %v", cfg.IdleTimeout)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Errorf("Expected SweepInterval 90s, got %v", cfg.SweepInterval)
	}
	if cfg.ConnectTimeout != 4*time.Second {
		t.Errorf("Expected ConnectTimeout 4s, got %v", cfg.ConnectTimeout)
	}
	if cfg.ProbeTimeout != 1500*time.Millisecond {
		t.Errorf("Expected ProbeTimeout 1.5s, got %v", cfg.ProbeTimeout)
	}
}

func TestLoadPoolConfigFromEnv_IgnoresInvalid(t *testing.T) {
	t.Setenv("MAX_POOL_SIZE", "banana")
	t.Setenv("IDLE_TIMEOUT", "-5m")
	t.Setenv("CONNECT_TIMEOUT", "soon")

	cfg := LoadPoolConfigFromEnv()
	if cfg.MaxPoolSize != DefaultMaxPoolSize {
		t.Errorf("Expected default MaxPoolSize for invalid value, got %d", cfg.MaxPoolSize)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("Expected default IdleTimeout for negative value, got %v", cfg.IdleTimeout)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Expected default ConnectTimeout for invalid value, got %v", cfg.ConnectTimeout)
	}
}

// --- File Config Tests ---

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadPoolConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
max_pool_size: 12
idle_timeout: 15m
connect_timeout: 8s
`)

	cfg, err := LoadPoolConfigFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.MaxPoolSize != 12 {
		t.Errorf("Expected MaxPoolSize 12, got %d", cfg.MaxPoolSize)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Errorf("Expected IdleTimeout 15m, got %v", cfg.IdleTimeout)
	}
	if cfg.ConnectTimeout != 8*time.Second {
		t.Errorf("Expected ConnectTimeout 8s, got %v", cfg.ConnectTimeout)
	}

	// Fields absent from the file keep their defaults.
	if cfg.SweepInterval != DefaultSweepInterval {
		t.Errorf("Expected default SweepInterval, got %v", cfg.SweepInterval)
	}
	if cfg.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("Expected default ProbeTimeout, got %v", cfg.ProbeTimeout)
	}
}

func TestLoadPoolConfigFile_MalformedDuration(t *testing.T) {
	path := writeConfigFile(t, "idle_timeout: whenever\n")

	if _, err := LoadPoolConfigFile(path); err == nil {
		t.Error("Expected error for malformed duration")
	}
}

func TestLoadPoolConfigFile_Missing(t *testing.T) {
	if _, err := LoadPoolConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
