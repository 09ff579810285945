package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/bioclick/internal/config"
	"github.com/me/bioclick/internal/store"
	"github.com/me/bioclick/pkg/model"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath  string
		limit   int
		offset  int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "Show recorded batches, or the jobs of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				return errors.New("no ledger configured (pass --db or set db_path)")
			}

			st, err := openStore(cmd, dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				return showBatch(cmd, st, args[0], jsonOut)
			}
			return listBatches(cmd, st, model.ListOptions{Limit: limit, Offset: offset}, jsonOut)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite ledger path (default from config db_path)")
	cmd.Flags().IntVar(&limit, "limit", model.DefaultListOptions().Limit, "Maximum batches to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Batches to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	return cmd
}

// openStore opens the ledger and brings its schema up to date.
func openStore(cmd *cobra.Command, path string, log *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return st, nil
}

func listBatches(cmd *cobra.Command, st store.Store, opts model.ListOptions, jsonOut bool) error {
	batches, total, err := st.ListBatches(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if batches == nil {
			batches = []*model.Batch{}
		}
		return json.NewEncoder(out).Encode(batches)
	}

	if len(batches) == 0 {
		fmt.Fprintln(out, "No batches recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-42s  %-10s  %5s  %5s  %6s  %s\n", "ID", "STATE", "JOBS", "OK", "FAILED", "STARTED")
	fmt.Fprintf(out, "%-42s  %-10s  %5s  %5s  %6s  %s\n", "--", "-----", "----", "--", "------", "-------")
	for _, b := range batches {
		fmt.Fprintf(out, "%-42s  %-10s  %5d  %5d  %6d  %s\n",
			b.ID, b.State, b.Jobs, b.Succeeded, b.Failed, b.StartedAt.Local().Format(time.DateTime))
	}
	if len(batches) < total {
		fmt.Fprintf(out, "\n(%d of %d shown)\n", len(batches), total)
	}
	return nil
}

func showBatch(cmd *cobra.Command, st store.Store, id string, jsonOut bool) error {
	b, err := st.GetBatch(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}
	if b == nil {
		return fmt.Errorf("batch %s not found", id)
	}
	recs, err := st.ListOutcomes(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if recs == nil {
			recs = []*model.JobRecord{}
		}
		return json.NewEncoder(out).Encode(struct {
			*model.Batch
			Outcomes []*model.JobRecord `json:"outcomes"`
		}{b, recs})
	}

	fmt.Fprintf(out, "Batch:    %s\n", b.ID)
	fmt.Fprintf(out, "State:    %s\n", b.State)
	fmt.Fprintf(out, "Order:    %s\n", b.Order)
	fmt.Fprintf(out, "Jobs:     %d (%d succeeded, %d failed)\n", b.Jobs, b.Succeeded, b.Failed)
	fmt.Fprintf(out, "Started:  %s\n", b.StartedAt.Local().Format(time.DateTime))
	if b.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", b.CompletedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%-6s  %-10s  %-8s  %-8s  %-20s  %s\n", "JOB", "ENGINE", "RULE", "STATUS", "CODE", "RESULT")
	fmt.Fprintf(out, "%-6s  %-10s  %-8s  %-8s  %-20s  %s\n", "---", "------", "----", "------", "----", "------")
	for _, r := range recs {
		status := string(r.Status)
		if !r.Done() {
			status = "PENDING"
		}
		result := r.Output
		if r.Error != "" {
			result = r.Error
		}
		fmt.Fprintf(out, "%-6d  %-10s  %-8s  %-8s  %-20s  %s\n",
			r.JobID, dash(r.Engine), dash(r.Rule), status, dash(r.Code), result)
	}
	return nil
}
