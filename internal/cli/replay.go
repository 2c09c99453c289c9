package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerwatchdog/dtre/checkpoint"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/internal/metrics"
	"github.com/ledgerwatchdog/dtre/ledger"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Scenario    string
	ConfigPath  string
	Database    string
	Interval    int
	Parallel    bool
	Workers     int
	MetricsAddr string
}

// ReplaySummary is the replay command's output payload. RunID is a
// correlation id for logs and storage keys; it never participates in
// any hash.
type ReplaySummary struct {
	RunID            string `json:"run_id"`
	Scenario         string `json:"scenario"`
	RulesVersion     string `json:"rules_version"`
	Transactions     int    `json:"transactions"`
	FinalHash        string `json:"final_hash"`
	ChainedHash      string `json:"chained_hash"`
	DurationMS       int64  `json:"duration_ms"`
	Checkpoints      []int  `json:"checkpoints,omitempty"`
	CheckpointsSaved bool   `json:"checkpoints_saved,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scenario and report its deterministic fingerprint",
		Long: `Replay a scenario file and report the final state hash and chained
trace hash. Re-running the same scenario anywhere produces the same
fingerprint.

Exit codes:
  0 - replay completed
  1 - replay halted (rule failure, invalid state, divergence)
  2 - command error (bad scenario, missing files)

Examples:
  dtre replay --scenario payroll.cue
  dtre replay --scenario payroll.cue --parallel --workers 8
  dtre replay --scenario payroll.cue --checkpoint-interval 1000 --db checkpoints.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "path to scenario CUE file (required)")
	_ = cmd.MarkFlagRequired("scenario")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for checkpoint blobs")
	cmd.Flags().IntVar(&opts.Interval, "checkpoint-interval", 0, "mint a checkpoint every N transactions")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "use the parallel driver")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parallel worker count (default: CPUs)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyConfig(opts, cfg)

	scenario, err := LoadScenario(opts.Scenario)
	if err != nil {
		return err
	}

	reg := BuiltinRegistry()
	ruleSet, err := reg.Get(scenario.RulesVersion)
	if err != nil {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("scenario requests unknown rules version %s", scenario.RulesVersion), err)
	}

	eng, err := engine.NewBuilder[ledger.State, ledger.Transaction]().
		WithInitialState(scenario.Initial).
		WithRuleSet(ruleSet).
		WithContext(scenario.Context()).
		WithCheckpointInterval(opts.Interval).
		WithParallelism(opts.Workers).
		WithLogger(slog.Default()).
		Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "engine build failed", err)
	}

	collector := metrics.NewCollector()
	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, collector)
	}

	ctx := context.Background()
	start := time.Now()

	var result *engine.ReplayResult[ledger.State]
	if opts.Parallel {
		result, err = eng.ReplayParallel(ctx, scenario.Transactions)
	} else {
		result, err = eng.Replay(ctx, scenario.Transactions)
	}
	if result != nil {
		collector.Observe(result.Metrics, err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("replay of %s halted", scenario.Name), err)
	}

	runID := uuid.NewString()
	summary := summarize(runID, scenario, result, time.Since(start))

	if opts.Database != "" && len(result.Checkpoints) > 0 {
		if err := saveCheckpoints(ctx, opts.Database, runID, result.Checkpoints); err != nil {
			return WrapExitError(ExitCommandError, "failed to save checkpoints", err)
		}
		summary.CheckpointsSaved = true
	}

	return writeSummary(opts, cmd, summary)
}

func applyConfig(opts *ReplayOptions, cfg *Config) {
	if opts.Database == "" {
		opts.Database = cfg.Database
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	if opts.Interval == 0 {
		opts.Interval = cfg.CheckpointInterval
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = cfg.MetricsAddr
	}
}

func summarize(runID string, scenario *Scenario, result *engine.ReplayResult[ledger.State], elapsed time.Duration) *ReplaySummary {
	summary := &ReplaySummary{
		RunID:        runID,
		Scenario:     scenario.Name,
		RulesVersion: scenario.RulesVersion.String(),
		Transactions: len(result.Trace.Transitions),
		FinalHash:    result.FinalHash.String(),
		ChainedHash:  result.Trace.ChainedHash.String(),
		DurationMS:   elapsed.Milliseconds(),
	}
	for _, cp := range result.Checkpoints {
		summary.Checkpoints = append(summary.Checkpoints, cp.Index)
	}
	return summary
}

func saveCheckpoints(ctx context.Context, dbPath, runID string, cps []engine.Checkpoint[ledger.State]) error {
	store, err := checkpoint.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, cp := range cps {
		blob, err := checkpoint.Encode(cp)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, runID, cp.Index, cp.StateHash.String(), blob); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(opts *ReplayOptions, cmd *cobra.Command, summary *ReplaySummary) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.JSON(summary)
	}
	out.Textf("scenario:     %s", summary.Scenario)
	out.Textf("rules:        %s", summary.RulesVersion)
	out.Textf("transactions: %d", summary.Transactions)
	out.Textf("final hash:   %s", summary.FinalHash)
	out.Textf("chained hash: %s", summary.ChainedHash)
	out.Textf("duration:     %dms", summary.DurationMS)
	if len(summary.Checkpoints) > 0 {
		out.Textf("checkpoints:  %v (saved: %v)", summary.Checkpoints, summary.CheckpointsSaved)
	}
	out.Textf("run id:       %s", summary.RunID)
	return nil
}

func serveMetrics(addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	// Best effort: metrics are observability, never control flow.
	_ = http.ListenAndServe(addr, mux)
}
