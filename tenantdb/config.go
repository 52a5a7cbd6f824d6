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
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the pool configuration.
const (
	DefaultMaxPoolSize    = 50
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
	DefaultConnectTimeout = 10 * time.Second
)

// PoolConfig holds the environment-driven tuning knobs of the tenant pool.
// Business logic never reads these directly; they are resolved once at
// construction time.
type PoolConfig struct {
	// MaxPoolSize bounds the number of concurrently held tenant connections.
	MaxPoolSize int

	// IdleTimeout is how long an entry may go unused before the sweep
	// closes it.
	IdleTimeout time.Duration

	// SweepInterval is the period of the background idle sweep.
	SweepInterval time.Duration

	// ConnectTimeout bounds connection creation.
	ConnectTimeout time.Duration

	// ProbeTimeout bounds a liveness probe, independent of ConnectTimeout.
	ProbeTimeout time.Duration
}

// DefaultPoolConfig returns the package defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPoolSize:    DefaultMaxPoolSize,
		IdleTimeout:    DefaultIdleTimeout,
		SweepInterval:  DefaultSweepInterval,
		ConnectTimeout: DefaultConnectTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
	}
}

// withDefaults fills zero values with the package defaults.
func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}

// LoadPoolConfigFromEnv resolves the pool configuration from environment
// variables, falling back to defaults for anything unset or unparsable:
//
//	MAX_POOL_SIZE    - integer, e.g. "50"
//	IDLE_TIMEOUT     - duration, e.g. "10m"
//	SWEEP_INTERVAL   - duration, e.g. "5m"
//	CONNECT_TIMEOUT  - duration, e.g. "10s"
//	PROBE_TIMEOUT    - duration, e.g. "2s"
func LoadPoolConfigFromEnv() PoolConfig {
	cfg := DefaultPoolConfig()
	if v := os.Getenv("MAX_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPoolSize = n
		}
	}
	cfg.IdleTimeout = envDuration("IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.ConnectTimeout = envDuration("CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.ProbeTimeout = envDuration("PROBE_TIMEOUT", cfg.ProbeTimeout)
	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// poolFileConfig is the YAML file representation. Durations are strings
// ("10m", "5s") so operators can write them the same way as env vars.
type poolFileConfig struct {
	MaxPoolSize    int    `yaml:"max_pool_size,omitempty"`
	IdleTimeout    string `yaml:"idle_timeout,omitempty"`
	SweepInterval  string `yaml:"sweep_interval,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
	ProbeTimeout   string `yaml:"probe_timeout,omitempty"`
}

// LoadPoolConfigFile loads pool configuration from a YAML file. Fields
// missing from the file keep their defaults; malformed durations are an
// error so a typo does not silently run with a default timeout.
func LoadPoolConfigFile(path string) (PoolConfig, error) {
	cfg := DefaultPoolConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read pool config file: %w", err)
	}

	var file poolFileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse pool config file: %w", err)
	}

	if file.MaxPoolSize > 0 {
		cfg.MaxPoolSize = file.MaxPoolSize
	}
	if cfg.IdleTimeout, err = fileDuration(file.IdleTimeout, cfg.IdleTimeout); err != nil {
		return cfg, fmt.Errorf("idle_timeout: %w", err)
	}
	if cfg.SweepInterval, err = fileDuration(file.SweepInterval, cfg.SweepInterval); err != nil {
		return cfg, fmt.Errorf("sweep_interval: %w", err)
	}
	if cfg.ConnectTimeout, err = fileDuration(file.ConnectTimeout, cfg.ConnectTimeout); err != nil {
		return cfg, fmt.Errorf("connect_timeout: %w", err)
	}
	if cfg.ProbeTimeout, err = fileDuration(file.ProbeTimeout, cfg.ProbeTimeout); err != nil {
		return cfg, fmt.Errorf("probe_timeout: %w", err)
	}

	return cfg, nil
}

func fileDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, err
	}
	if d <= 0 {
		return fallback, fmt.Errorf("duration must be positive, got %q", value)
	}
	return d, nil
}
