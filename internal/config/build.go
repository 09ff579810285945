package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/me/bioclick/internal/engine"
	"github.com/me/bioclick/internal/routing"
	"github.com/me/bioclick/pkg/model"
)

var knownRuleTypes = map[string]bool{
	"fixed":    true,
	"parity":   true,
	"size":     true,
	"program":  true,
	"database": true,
	"expr":     true,
}

// Build instantiates every configured engine once, registers it, and builds
// the routing table over the registry.
func Build(cfg Config, logger *slog.Logger) (*engine.Registry, *routing.Table, error) {
	outputs := engine.NewOutputs(cfg.OutputsDir)
	reg := engine.NewRegistry(logger)

	for _, ec := range cfg.Engines {
		e, err := newEngine(ec, outputs, logger)
		if err != nil {
			return nil, nil, err
		}
		reg.Register(ec.Name, e)
	}

	rules := make([]routing.Rule, 0, len(cfg.Routing.Rules))
	for i, rc := range cfg.Routing.Rules {
		r, err := newRule(rc)
		if err != nil {
			return nil, nil, fmt.Errorf("routing.rules[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}

	table, err := routing.NewTable(reg, cfg.Routing.Default, rules...)
	if err != nil {
		return nil, nil, fmt.Errorf("build routing table: %w", err)
	}
	return reg, table, nil
}

func newEngine(ec EngineConfig, outputs *engine.Outputs, logger *slog.Logger) (engine.Engine, error) {
	switch engine.Type(ec.Type) {
	case engine.TypeDummy:
		return engine.NewDummyEngine(engine.DummyConfig{
			Name:   ec.DisplayName,
			Prefix: ec.Prefix,
			Delay:  time.Duration(ec.Delay),
		}, outputs, logger), nil
	case engine.TypeProcess:
		return engine.NewProcessEngine(engine.ProcessConfig{
			Name:        ec.DisplayName,
			Prefix:      ec.Prefix,
			Command:     ec.Command,
			WorkDir:     ec.WorkDir,
			MaxParallel: ec.MaxParallel,
			Databases:   ec.Databases,
		}, outputs, logger), nil
	case engine.TypeRemote:
		return engine.NewRemoteEngine(engine.RemoteConfig{
			Name:    ec.DisplayName,
			Prefix:  ec.Prefix,
			URL:     ec.URL,
			Timeout: time.Duration(ec.Timeout),
		}, outputs, logger), nil
	default:
		return nil, fmt.Errorf("engine %s: unknown type %q", ec.Name, ec.Type)
	}
}

func newRule(rc RuleConfig) (routing.Rule, error) {
	switch rc.Type {
	case "fixed":
		if rc.Engine == "" {
			return nil, fmt.Errorf("fixed rule needs engine")
		}
		return routing.FixedRule{Engine: rc.Engine}, nil
	case "parity":
		if rc.Odd == "" || rc.Even == "" {
			return nil, fmt.Errorf("parity rule needs odd and even")
		}
		return routing.ParityRule{Odd: rc.Odd, Even: rc.Even}, nil
	case "size":
		if rc.Engine == "" || rc.MaxBytes <= 0 {
			return nil, fmt.Errorf("size rule needs engine and a positive max_bytes")
		}
		return routing.SizeRule{MaxBytes: rc.MaxBytes, Engine: rc.Engine}, nil
	case "program":
		if len(rc.Programs) == 0 {
			return nil, fmt.Errorf("program rule needs programs")
		}
		programs := make(map[model.SearchType]string, len(rc.Programs))
		for p, e := range rc.Programs {
			st, err := model.ParseSearchType(p)
			if err != nil {
				return nil, err
			}
			programs[st] = e
		}
		return routing.ProgramRule{Programs: programs}, nil
	case "database":
		if len(rc.Databases) == 0 {
			return nil, fmt.Errorf("database rule needs databases")
		}
		return routing.DatabaseRule{Databases: rc.Databases}, nil
	case "expr":
		return routing.NewExprRule(rc.Expr, rc.Engine)
	default:
		return nil, fmt.Errorf("unknown rule type %q", rc.Type)
	}
}
