package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/me/bioclick/internal/batch"
	"github.com/me/bioclick/internal/config"
	"github.com/me/bioclick/internal/logging"
	"github.com/me/bioclick/internal/metrics"
	"github.com/me/bioclick/internal/routing"
	"github.com/me/bioclick/internal/scheduler"
	"github.com/me/bioclick/internal/store"
	"github.com/me/bioclick/pkg/model"
	"github.com/spf13/cobra"
)

// JobsFailedError is returned by run when at least one job failed. The batch
// itself completed; the report has already been printed.
type JobsFailedError struct {
	Failed int
	Jobs   int
}

func (e *JobsFailedError) Error() string {
	return fmt.Sprintf("%d of %d jobs failed", e.Failed, e.Jobs)
}

func newRunCmd() *cobra.Command {
	var (
		manifest    string
		engineName  string
		order       string
		jobTimeout  time.Duration
		program     string
		database    string
		dbPath      string
		metricsFile string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "run [fasta-file...]",
		Short: "Run one batch of BLAST jobs and report every outcome",
		Long: `Builds one job per FASTA file (or from a --batch manifest), dispatches
each job to the engine chosen by the routing table, waits for all of them,
and prints the outcome of every job. Exits non-zero if any job failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("order") {
				cfg.Order = order
			}
			if cmd.Flags().Changed("job-timeout") {
				cfg.JobTimeout = config.Duration(jobTimeout)
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			log := configLogger(cmd, cfg)

			schedCfg, err := cfg.SchedulerConfig()
			if err != nil {
				return err
			}

			jobs, err := loadJobs(manifest, args, program, database)
			if err != nil {
				return err
			}

			reg, table, err := config.Build(cfg, log)
			if err != nil {
				return err
			}
			var policy routing.Policy = table
			if engineName != "" {
				if !reg.Has(engineName) {
					return fmt.Errorf("unknown engine %q (configured: %s)", engineName, strings.Join(reg.Names(), ", "))
				}
				if policy, err = routing.NewTable(reg, engineName); err != nil {
					return err
				}
			}

			var opts []scheduler.Option
			var collector *metrics.Collector
			if metricsFile != "" {
				collector = metrics.NewCollector(reg.Names()...)
				opts = append(opts, scheduler.WithObserver(collector))
			}
			if cfg.DBPath != "" {
				st, err := openStore(cmd, cfg.DBPath, log)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, scheduler.WithObserver(store.NewRecorder(st, log)))
			}

			sched := scheduler.New(jobs, policy, schedCfg, log, opts...)
			rep, err := sched.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run batch: %w", err)
			}

			if collector != nil {
				if err := collector.WriteTextfile(metricsFile); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := writeReportJSON(out, rep); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			} else {
				writeReport(out, rep)
			}

			if !rep.OK() {
				return &JobsFailedError{Failed: rep.Failed, Jobs: rep.Jobs}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifest, "batch", "", "Batch manifest (YAML) instead of input files")
	cmd.Flags().StringVar(&engineName, "engine", "", "Send every job to this engine, bypassing the routing rules")
	cmd.Flags().StringVar(&order, "order", string(scheduler.OrderFIFO), "Dispatch order (fifo, lifo)")
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "Per-job time limit (0 disables)")
	cmd.Flags().StringVar(&program, "program", string(model.SearchBlastN), "Search program for input files")
	cmd.Flags().StringVar(&database, "database", model.DefaultDatabase, "Reference database for input files")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record the batch in this SQLite ledger")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the batch")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")

	return cmd
}

// configLogger returns the root logger, or one built from the config file's
// log settings when no logging flag was given.
func configLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	flags := cmd.Flags()
	if flags.Changed("log-level") || flags.Changed("log-format") || flags.Changed("debug") {
		return logger
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return logger
	}
	return logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), format, cmd.ErrOrStderr())
}

func loadJobs(manifest string, inputs []string, program, database string) ([]*model.Job, error) {
	switch {
	case manifest != "" && len(inputs) > 0:
		return nil, errors.New("pass either --batch or input files, not both")
	case manifest != "":
		jobs, err := batch.Load(manifest)
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			return nil, fmt.Errorf("manifest %s has no jobs", manifest)
		}
		return jobs, nil
	case len(inputs) == 0:
		return nil, errors.New("no input files (pass FASTA paths or --batch manifest.yaml)")
	}

	for _, p := range inputs {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("input file does not exist: %s", p)
		}
	}
	t, err := model.ParseSearchType(program)
	if err != nil {
		return nil, err
	}
	return batch.FromInputs(inputs, t, database)
}
