package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/pkg/model"
)

// Environment variables consulted by Load.
const (
	EnvConfig  = "BIOCLICK_CONFIG"
	EnvOutputs = "BIOCLICK_OUTPUTS"
)

// Config holds configuration for a bioclick deployment.
type Config struct {
	LogLevel   string         `yaml:"log_level"`   // debug, info, warn, error
	LogFormat  string         `yaml:"log_format"`  // text, json
	OutputsDir string         `yaml:"outputs_dir"` // Where engines write result artifacts
	DBPath     string         `yaml:"db_path"`     // SQLite ledger path; empty disables the ledger
	Order      string         `yaml:"order"`       // fifo or lifo
	JobTimeout Duration       `yaml:"job_timeout"` // Per-job deadline; 0 disables
	Engines    []EngineConfig `yaml:"engines"`
	Routing    RoutingConfig  `yaml:"routing"`
}

// EngineConfig declares one shared engine instance.
type EngineConfig struct {
	Name        string   `yaml:"name"`         // Registry name used by routing rules
	Type        string   `yaml:"type"`         // dummy, process or remote
	DisplayName string   `yaml:"display_name"` // Reported by Engine.Name()
	Prefix      string   `yaml:"prefix"`       // Output file name prefix
	Delay       Duration `yaml:"delay"`        // dummy only

	Command     []string `yaml:"command"`      // process only
	WorkDir     string   `yaml:"work_dir"`     // process only
	MaxParallel int      `yaml:"max_parallel"` // process only
	Databases   []string `yaml:"databases"`    // process only

	URL     string   `yaml:"url"`     // remote only
	Timeout Duration `yaml:"timeout"` // remote only
}

// RoutingConfig is the routing table: rules in match order and a default.
type RoutingConfig struct {
	Default string       `yaml:"default"`
	Rules   []RuleConfig `yaml:"rules"`
}

// RuleConfig declares one routing rule. Which fields apply depends on Type.
type RuleConfig struct {
	Type      string            `yaml:"type"` // fixed, parity, size, program, database, expr
	Engine    string            `yaml:"engine,omitempty"`
	Odd       string            `yaml:"odd,omitempty"`
	Even      string            `yaml:"even,omitempty"`
	MaxBytes  int64             `yaml:"max_bytes,omitempty"`
	Programs  map[string]string `yaml:"programs,omitempty"`
	Databases map[string]string `yaml:"databases,omitempty"`
	Expr      string            `yaml:"expr,omitempty"`
}

// DefaultConfig returns the stock three-engine deployment with every job
// routed to the remote engine.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "text",
		OutputsDir: engine.DefaultOutputsDir,
		Order:      string(scheduler.OrderFIFO),
		Engines: []EngineConfig{
			{Name: "small", Type: string(engine.TypeDummy), DisplayName: "DummyEngine", Prefix: "small"},
			{Name: "large", Type: string(engine.TypeProcess), DisplayName: "ProcessEngine", Prefix: "large",
				Command: append([]string(nil), engine.DefaultProcessCommand...)},
			{Name: "python", Type: string(engine.TypeRemote), DisplayName: "RemoteEngine", Prefix: "python",
				URL: engine.DefaultRemoteURL, Timeout: Duration(5 * time.Minute)},
		},
		Routing: RoutingConfig{Default: "python"},
	}
}

// Load reads the YAML file at path over DefaultConfig. An empty path falls
// back to $BIOCLICK_CONFIG, and to the defaults alone when that is unset.
// $BIOCLICK_OUTPUTS overrides outputs_dir.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if dir := os.Getenv(EnvOutputs); dir != "" {
		cfg.OutputsDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural errors. Engine references
// in routing rules are checked when the table is built.
func (c Config) Validate() error {
	var errs []error
	if _, err := scheduler.ParseOrder(c.Order); err != nil {
		errs = append(errs, err)
	}
	if c.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("job_timeout must not be negative"))
	}
	if len(c.Engines) == 0 {
		errs = append(errs, fmt.Errorf("at least one engine is required"))
	}
	seen := make(map[string]bool, len(c.Engines))
	for i, e := range c.Engines {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("engines[%d]: name is required", i))
			continue
		}
		if seen[e.Name] {
			errs = append(errs, fmt.Errorf("engines[%d]: duplicate engine name %q", i, e.Name))
		}
		seen[e.Name] = true
		switch engine.Type(e.Type) {
		case engine.TypeDummy, engine.TypeRemote:
		case engine.TypeProcess:
			if e.MaxParallel < 0 {
				errs = append(errs, fmt.Errorf("engine %s: max_parallel must not be negative", e.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("engine %s: unknown type %q", e.Name, e.Type))
		}
	}
	for i, r := range c.Routing.Rules {
		if !knownRuleTypes[r.Type] {
			errs = append(errs, fmt.Errorf("routing.rules[%d]: unknown rule type %q", i, r.Type))
		}
	}
	return errors.Join(errs...)
}

// SchedulerConfig extracts the scheduler settings.
func (c Config) SchedulerConfig() (scheduler.Config, error) {
	order, err := scheduler.ParseOrder(c.Order)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Order: order, JobTimeout: time.Duration(c.JobTimeout)}, nil
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML accepts "30s"-style strings and bare integers of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// String returns the Go duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// ServerConfig holds configuration for the engine server.
type ServerConfig struct {
	Addr           string        // Listen address (default "127.0.0.1:5001")
	LogLevel       string        // Log level: debug, info, warn, error
	LogFormat      string        // Log format: text, json
	MaxUploadBytes int64         // Upload limit for run_blast
	Databases      []string      // Databases the server can search
	Command        []string      // Search command template; empty uses the built-in summary
	SearchTimeout  time.Duration // Per-search limit; 0 disables
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "127.0.0.1:5001",
		LogLevel:       "info",
		LogFormat:      "text",
		MaxUploadBytes: 2 << 20,
		Databases:      []string{model.DefaultDatabase, "nr", "refseq_rna", "refseq_protein", "swissprot", "pdb"},
		SearchTimeout:  5 * time.Minute,
	}
}
