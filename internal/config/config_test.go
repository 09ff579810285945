package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/pkg/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bioclick.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Builds(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	reg, table, err := Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := strings.Join(reg.Names(), ","); got != "large,python,small" {
		t.Errorf("engines = %s", got)
	}

	// Every job goes to the remote engine in the stock deployment.
	for _, id := range []uint64{1, 2, 3} {
		d, err := table.Route(&model.Job{ID: id})
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if d.EngineName != "python" || d.Rule != "default" {
			t.Errorf("job %d -> %s (%s), want python (default)", id, d.EngineName, d.Rule)
		}
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
order: lifo
job_timeout: 90s
outputs_dir: /tmp/bioclick-out
engines:
  - name: a
    type: dummy
    delay: 10ms
  - name: b
    type: process
    command: ["cat", "{input}"]
    max_parallel: 2
    databases: [nt]
routing:
  default: a
  rules:
    - type: size
      max_bytes: 4096
      engine: a
    - type: program
      programs:
        blastp: b
    - type: expr
      expr: job.database === "nt"
      engine: b
`)
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvOutputs, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.OutputsDir != "/tmp/bioclick-out" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Engines) != 2 {
		t.Fatalf("engines = %d, want 2 (file replaces defaults)", len(cfg.Engines))
	}
	if time.Duration(cfg.Engines[0].Delay) != 10*time.Millisecond {
		t.Errorf("delay = %s", cfg.Engines[0].Delay)
	}

	sc, err := cfg.SchedulerConfig()
	if err != nil {
		t.Fatalf("SchedulerConfig: %v", err)
	}
	if sc.Order != scheduler.OrderLIFO || sc.JobTimeout != 90*time.Second {
		t.Errorf("scheduler config = %+v", sc)
	}

	_, table, err := Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tests := []struct {
		job  model.Job
		want string
		rule string
	}{
		{model.Job{ID: 1, InputSize: 100}, "a", "size"},
		{model.Job{ID: 2, Program: model.SearchBlastP}, "b", "program"},
		{model.Job{ID: 3, Database: "nt"}, "b", "expr"},
		{model.Job{ID: 4, Database: "nr"}, "a", "default"},
	}
	for _, tt := range tests {
		job := tt.job
		d, err := table.Route(&job)
		if err != nil {
			t.Fatalf("Route(%d): %v", job.ID, err)
		}
		if d.EngineName != tt.want || d.Rule != tt.rule {
			t.Errorf("job %d -> %s/%s, want %s/%s", job.ID, d.EngineName, d.Rule, tt.want, tt.rule)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "order: fifo\n")
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvOutputs, "/var/tmp/results")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputsDir != "/var/tmp/results" {
		t.Errorf("outputs_dir = %q", cfg.OutputsDir)
	}
	if len(cfg.Engines) != 3 {
		t.Errorf("engines = %d, want defaults kept", len(cfg.Engines))
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvOutputs, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "engines: [", "parse config"},
		{"bad order", "order: random\n", "unknown dispatch order"},
		{"bad duration", "job_timeout: soon\n", "invalid duration"},
		{"unknown engine type", "engines:\n  - name: x\n    type: gpu\n", "unknown type"},
		{"duplicate engine", "engines:\n  - {name: x, type: dummy}\n  - {name: x, type: dummy}\n", "duplicate engine"},
		{"no engines", "engines: []\n", "at least one engine"},
		{"unknown rule", "routing:\n  default: python\n  rules:\n    - type: coin\n", "unknown rule type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBuild_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unregistered default", func(c *Config) { c.Routing.Default = "gpu" }, "not registered"},
		{"parity missing even", func(c *Config) {
			c.Routing.Rules = []RuleConfig{{Type: "parity", Odd: "small"}}
		}, "odd and even"},
		{"size without limit", func(c *Config) {
			c.Routing.Rules = []RuleConfig{{Type: "size", Engine: "small"}}
		}, "max_bytes"},
		{"bad program", func(c *Config) {
			c.Routing.Rules = []RuleConfig{{Type: "program", Programs: map[string]string{"megablast": "small"}}}
		}, "unknown search type"},
		{"bad expr", func(c *Config) {
			c.Routing.Rules = []RuleConfig{{Type: "expr", Expr: "job.id ===", Engine: "small"}}
		}, "compile"},
		{"rule to unknown engine", func(c *Config) {
			c.Routing.Rules = []RuleConfig{{Type: "fixed", Engine: "gpu"}}
		}, "not registered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, _, err := Build(cfg, logger)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Build error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 1m30s\nb: 45\n"), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if time.Duration(v.A) != 90*time.Second || time.Duration(v.B) != 45*time.Second {
		t.Errorf("durations = %s, %s", v.A, v.B)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "a: 1m30s") {
		t.Errorf("marshalled = %q", out)
	}
}
