package cli

import (
	"fmt"
	"strings"

	"github.com/me/bioclick/internal/config"
	"github.com/me/bioclick/internal/engine"
	"github.com/spf13/cobra"
)

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List configured engines and the routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			reg, table, err := config.Build(cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s  %-8s  %-16s  %s\n", "NAME", "TYPE", "ENGINE", "TARGET")
			fmt.Fprintf(out, "%-12s  %-8s  %-16s  %s\n", "----", "----", "------", "------")
			for _, ec := range cfg.Engines {
				e, err := reg.Get(ec.Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-12s  %-8s  %-16s  %s\n", ec.Name, ec.Type, e.Name(), engineTarget(ec))
			}

			fmt.Fprintf(out, "\nRouting:\n%s", table.Describe())
			return nil
		},
	}
}

func engineTarget(ec config.EngineConfig) string {
	switch engine.Type(ec.Type) {
	case engine.TypeProcess:
		if len(ec.Command) == 0 {
			return strings.Join(engine.DefaultProcessCommand, " ")
		}
		return strings.Join(ec.Command, " ")
	case engine.TypeRemote:
		if ec.URL == "" {
			return engine.DefaultRemoteURL
		}
		return ec.URL
	default:
		return "-"
	}
}
