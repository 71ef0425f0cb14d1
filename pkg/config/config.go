package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence/middleware"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/sweep"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full deployment configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Sync      SyncConfig      `mapstructure:"sync"`
	ShadowLog ShadowLogConfig `mapstructure:"shadow_log"`
	Server    ServerConfig    `mapstructure:"server"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
	// DistributedLocks serializes writes across replicas through Redis.
	DistributedLocks bool          `mapstructure:"distributed_locks"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	// EncryptionKey is a hex-encoded 32-byte key. Empty disables encryption.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

type SweepConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	QueueTimeout     time.Duration `mapstructure:"queue_timeout"`
	RecoverableQueue bool          `mapstructure:"recoverable_queue"`
	ReclaimMode      string        `mapstructure:"reclaim_mode"`
}

type SyncConfig struct {
	EscalationThreshold time.Duration `mapstructure:"escalation_threshold"`
}

type ShadowLogConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// WorkflowConfig is the graph plus the attribute names its conditions may use.
// An empty Variables list disables the unknown-variable check.
type WorkflowConfig struct {
	Name      string            `mapstructure:"name"`
	Variables []string          `mapstructure:"variables"`
	Locations []domain.Location `mapstructure:"locations"`
}

// Default returns a configuration with every optional field set. ReclaimMode
// is intentionally left empty and must be configured.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Backend: BackendMemory, Prefix: "chameleon:", LockTTL: 30 * time.Second},
		Sweep: SweepConfig{
			Interval:         sweep.DefaultInterval,
			ExecutionTimeout: sweep.DefaultExecutionTimeout,
		},
		Sync:      SyncConfig{EscalationThreshold: guard.DefaultSyncEscalationThreshold},
		ShadowLog: ShadowLogConfig{Capacity: shadowlog.DefaultCapacity},
		Server:    ServerConfig{Addr: ":8080", Metrics: true},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused: true,
		Result:      &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.Store.Addr == "" {
			errs = append(errs, errors.New("store.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.DistributedLocks && c.Store.Backend != BackendRedis {
		errs = append(errs, errors.New("store.distributed_locks requires the redis backend"))
	}
	if _, err := c.Encryption(); err != nil {
		errs = append(errs, err)
	}

	if _, err := sweep.ParseReclaimMode(c.Sweep.ReclaimMode); err != nil {
		errs = append(errs, fmt.Errorf("sweep.reclaim_mode: %w", err))
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}
	if c.Sweep.ExecutionTimeout <= 0 {
		errs = append(errs, errors.New("sweep.execution_timeout must be positive"))
	}
	if c.Sweep.QueueTimeout < 0 {
		errs = append(errs, errors.New("sweep.queue_timeout must not be negative"))
	}
	if c.ShadowLog.Capacity <= 0 {
		errs = append(errs, errors.New("shadow_log.capacity must be positive"))
	}

	errs = append(errs, c.Workflow.validate()...)
	return errors.Join(errs...)
}

func (w WorkflowConfig) validate() []error {
	var errs []error
	if w.Name == "" {
		errs = append(errs, errors.New("workflow.name is required"))
	}
	if len(w.Locations) == 0 {
		return append(errs, errors.New("workflow.locations must not be empty"))
	}

	ids := make(map[string]bool, len(w.Locations))
	terminals := 0
	for _, l := range w.Locations {
		if l.ID == "" {
			errs = append(errs, errors.New("workflow: location without id"))
			continue
		}
		if ids[l.ID] {
			errs = append(errs, fmt.Errorf("workflow: duplicate location %q", l.ID))
		}
		ids[l.ID] = true
		if l.Terminal {
			terminals++
		}
	}
	if terminals == 0 {
		errs = append(errs, errors.New("workflow: at least one terminal location is required"))
	}

	var allowed map[string]bool
	if len(w.Variables) > 0 {
		allowed = guard.AllowedVariables(w.Variables...)
	}
	for _, l := range w.Locations {
		if l.Role == "" {
			errs = append(errs, fmt.Errorf("workflow: location %q has no role", l.ID))
		}
		if _, err := schema.ParseTypeMap(l.Requires); err != nil {
			errs = append(errs, fmt.Errorf("workflow: location %q requires: %w", l.ID, err))
		}
		if l.Policy == nil {
			if !l.Terminal {
				errs = append(errs, fmt.Errorf("workflow: location %q needs a routing policy", l.ID))
			}
			continue
		}
		if err := guard.ValidatePolicy(l.Policy, allowed, nil); err != nil {
			errs = append(errs, fmt.Errorf("workflow: location %q: %w", l.ID, err))
		}
		for i, b := range l.Policy.Branches {
			if b.Destination != "" && !ids[b.Destination] {
				errs = append(errs, fmt.Errorf("workflow: location %q branch %d: unknown destination %q", l.ID, i, b.Destination))
			}
		}
	}
	return errs
}

// WorkflowDefinition returns the graph as a domain value.
func (c *Config) WorkflowDefinition() *domain.Workflow {
	locs := make([]domain.Location, len(c.Workflow.Locations))
	copy(locs, c.Workflow.Locations)
	return &domain.Workflow{Name: c.Workflow.Name, Locations: locs}
}

// SweepSettings converts the sweep section. Call after Validate.
func (c *Config) SweepSettings() sweep.Config {
	mode, _ := sweep.ParseReclaimMode(c.Sweep.ReclaimMode)
	return sweep.Config{
		Interval:         c.Sweep.Interval,
		ExecutionTimeout: c.Sweep.ExecutionTimeout,
		QueueTimeout:     c.Sweep.QueueTimeout,
		RecoverableQueue: c.Sweep.RecoverableQueue,
		ReclaimMode:      mode,
	}
}

// Encryption decodes the at-rest keys. It returns nil when encryption is off.
func (c *Config) Encryption() (*middleware.EncryptionConfig, error) {
	if c.Store.EncryptionKey == "" {
		if len(c.Store.FallbackKeys) > 0 {
			return nil, errors.New("store.fallback_keys requires store.encryption_key")
		}
		return nil, nil
	}
	active, err := decodeKey(c.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	enc := &middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range c.Store.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return enc, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}
