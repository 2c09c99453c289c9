package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/compare"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/ledger"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	Scenario  string
	Candidate string
}

// CompareSummary is the compare command's output payload.
type CompareSummary struct {
	Scenario             string `json:"scenario"`
	BaselineVersion      string `json:"baseline_version"`
	CandidateVersion     string `json:"candidate_version"`
	Safe                 bool   `json:"safe"`
	FinalHashEqual       bool   `json:"final_hash_equal"`
	FirstDivergenceIndex *int   `json:"first_divergence_index,omitempty"`
	DivergentTransitions int    `json:"divergent_transitions"`
	Verdict              string `json:"verdict"`
}

// NewCompareCommand creates the compare command for rule-migration
// analysis.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Replay a scenario under two rule versions and diff the results",
		Long: `Replay the scenario under its own rules version (the baseline) and a
candidate version, then report whether the migration is behavior-preserving
and where the first divergence occurs.

Exit codes:
  0 - versions produce identical results
  1 - versions diverge
  2 - command error

Example:
  dtre compare --scenario payroll.cue --candidate 2.0.0`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "path to scenario CUE file (required)")
	_ = cmd.MarkFlagRequired("scenario")
	cmd.Flags().StringVar(&opts.Candidate, "candidate", "", "candidate rules version (required)")
	_ = cmd.MarkFlagRequired("candidate")

	return cmd
}

func runCompare(opts *CompareOptions, cmd *cobra.Command) error {
	scenario, err := LoadScenario(opts.Scenario)
	if err != nil {
		return err
	}
	candidateVersion, err := dtre.ParseVersion(opts.Candidate)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid candidate version %q", opts.Candidate), err)
	}

	reg := BuiltinRegistry()
	baseline, err := reg.Get(scenario.RulesVersion)
	if err != nil {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("scenario requests unknown rules version %s", scenario.RulesVersion), err)
	}
	candidate, err := reg.Get(candidateVersion)
	if err != nil {
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown candidate rules version %s", candidateVersion), err)
	}

	eng, err := engine.NewBuilder[ledger.State, ledger.Transaction]().
		WithInitialState(scenario.Initial).
		WithRuleSet(baseline).
		WithContext(scenario.Context()).
		WithLogger(slog.Default()).
		Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "engine build failed", err)
	}

	impact, err := compare.AnalyzeMigrationImpact(context.Background(), eng, scenario.Transactions, candidate)
	if err != nil {
		return WrapExitError(ExitFailure, "migration analysis failed", err)
	}

	summary := &CompareSummary{
		Scenario:             scenario.Name,
		BaselineVersion:      impact.BaselineVersion.String(),
		CandidateVersion:     impact.CandidateVersion.String(),
		Safe:                 impact.Safe(),
		FinalHashEqual:       impact.Comparison.FinalHashEqual,
		FirstDivergenceIndex: impact.Comparison.FirstDivergenceIndex,
		DivergentTransitions: impact.Comparison.DivergentCount(),
		Verdict:              impact.Summary(),
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if err := out.JSON(summary); err != nil {
			return err
		}
	} else {
		out.Textf("%s", summary.Verdict)
		if summary.FirstDivergenceIndex != nil {
			out.Textf("first divergence at transaction index %d", *summary.FirstDivergenceIndex)
		}
	}

	if !summary.Safe {
		return NewExitError(ExitFailure, "rule versions diverge")
	}
	return nil
}
