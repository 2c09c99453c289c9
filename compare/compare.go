// Package compare provides structural comparison of replay results for
// rule-migration analysis: pairwise diffs, first-divergence location,
// and partitioning of results into equivalence classes by final hash.
package compare

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// TransitionDifference records one index of a pairwise transition
// comparison. A missing transition on either side (sequences of
// different committed length) compares unequal with a zero hash.
type TransitionDifference struct {
	Index          int
	TransactionID  string
	BaselineHash   hasher.StateHash
	ComparisonHash hasher.StateHash
	Equal          bool
}

// ResultComparison is the structural diff between two replay results.
type ResultComparison struct {
	FinalHashEqual        bool
	TransactionCountEqual bool

	// FirstDivergenceIndex is the smallest index at which the two
	// traces' to-hashes differ, or nil if they never do.
	FirstDivergenceIndex *int

	Differences []TransitionDifference
}

// Compare diffs two replay results. Comparing a result against itself
// yields FinalHashEqual and a nil FirstDivergenceIndex.
func Compare[S dtre.State[S]](baseline, comparison *engine.ReplayResult[S]) ResultComparison {
	rc := ResultComparison{
		FinalHashEqual:        baseline.FinalHash.Equal(comparison.FinalHash),
		TransactionCountEqual: len(baseline.Trace.Transitions) == len(comparison.Trace.Transitions),
	}

	bt := baseline.Trace.Transitions
	ct := comparison.Trace.Transitions
	for i := 0; i < max(len(bt), len(ct)); i++ {
		var d TransitionDifference
		d.Index = i
		switch {
		case i < len(bt) && i < len(ct):
			d.TransactionID = bt[i].TransactionID
			d.BaselineHash = bt[i].ToHash
			d.ComparisonHash = ct[i].ToHash
			d.Equal = bt[i].ToHash.Equal(ct[i].ToHash)
		case i < len(bt):
			d.TransactionID = bt[i].TransactionID
			d.BaselineHash = bt[i].ToHash
		default:
			d.TransactionID = ct[i].TransactionID
			d.ComparisonHash = ct[i].ToHash
		}
		if !d.Equal && rc.FirstDivergenceIndex == nil {
			idx := i
			rc.FirstDivergenceIndex = &idx
		}
		rc.Differences = append(rc.Differences, d)
	}
	return rc
}

// Identical reports whether the two results are indistinguishable at
// the hash level.
func (c ResultComparison) Identical() bool {
	return c.FinalHashEqual && c.TransactionCountEqual && c.FirstDivergenceIndex == nil
}

// DivergentCount returns the number of unequal transitions.
func (c ResultComparison) DivergentCount() int {
	n := 0
	for _, d := range c.Differences {
		if !d.Equal {
			n++
		}
	}
	return n
}

// Summary renders a one-line human-readable report.
func (c ResultComparison) Summary() string {
	if c.Identical() {
		return "results are identical"
	}
	var parts []string
	if !c.FinalHashEqual {
		parts = append(parts, "final hashes differ")
	}
	if !c.TransactionCountEqual {
		parts = append(parts, "transaction counts differ")
	}
	if n := c.DivergentCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d transitions diverged", n))
	}
	if c.FirstDivergenceIndex != nil {
		parts = append(parts, fmt.Sprintf("first divergence at index %d", *c.FirstDivergenceIndex))
	}
	return "results differ: " + strings.Join(parts, ", ")
}

// PairwiseComparison is one entry of an impact report.
type PairwiseComparison struct {
	I, J       int
	Comparison ResultComparison
}

// ImpactReport aggregates pairwise comparisons over a set of replay
// results. Classes partitions the result indices into equivalence
// classes by final hash: two results land in the same class iff their
// final hashes are byte-equal, even when they reached that hash through
// different transitions (the pairwise entry still records the
// divergence index).
type ImpactReport struct {
	Pairwise []PairwiseComparison
	Classes  [][]int
}

// Equivalent reports whether all compared results share one final hash.
func (r ImpactReport) Equivalent() bool {
	return len(r.Classes) <= 1
}

// AnalyzeImpact aggregates pairwise comparisons of results, typically
// one per rule version, and partitions them into hash equivalence
// classes. Classes are ordered by first occurrence, members ascending.
func AnalyzeImpact[S dtre.State[S]](results []*engine.ReplayResult[S]) ImpactReport {
	var report ImpactReport

	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			report.Pairwise = append(report.Pairwise, PairwiseComparison{
				I: i, J: j,
				Comparison: Compare(results[i], results[j]),
			})
		}
	}

	classIndex := make(map[hasher.StateHash]int)
	for i, r := range results {
		ci, ok := classIndex[r.FinalHash]
		if !ok {
			ci = len(report.Classes)
			classIndex[r.FinalHash] = ci
			report.Classes = append(report.Classes, nil)
		}
		report.Classes[ci] = append(report.Classes[ci], i)
	}
	return report
}

// MigrationImpact is the outcome of replaying one sequence under a
// baseline and a candidate rule set.
type MigrationImpact[S dtre.State[S]] struct {
	BaselineVersion  dtre.Version
	CandidateVersion dtre.Version
	Baseline         *engine.ReplayResult[S]
	Candidate        *engine.ReplayResult[S]
	Comparison       ResultComparison
}

// Safe reports whether the migration changes nothing observable.
func (m *MigrationImpact[S]) Safe() bool {
	return m.Comparison.Identical()
}

// Summary renders a human-readable migration verdict.
func (m *MigrationImpact[S]) Summary() string {
	if m.Safe() {
		return fmt.Sprintf("safe migration: %s -> %s produces identical results",
			m.BaselineVersion, m.CandidateVersion)
	}
	return fmt.Sprintf("unsafe migration: %s -> %s: %s",
		m.BaselineVersion, m.CandidateVersion, m.Comparison.Summary())
}

// AnalyzeMigrationImpact replays txs under the engine's own rules and
// under candidate, then compares. The same sealed context drives both
// runs, so any drift is attributable to the rules alone.
func AnalyzeMigrationImpact[S dtre.State[S], T dtre.Transaction](
	ctx context.Context,
	eng *engine.Engine[S, T],
	txs []T,
	candidate dtre.RuleSet[S, T],
) (*MigrationImpact[S], error) {
	baseline, err := eng.Replay(ctx, txs)
	if err != nil {
		return nil, err
	}
	comparison, err := eng.ReplayWithRules(ctx, txs, candidate)
	if err != nil {
		return nil, err
	}
	return &MigrationImpact[S]{
		BaselineVersion:  eng.Rules().Version(),
		CandidateVersion: candidate.Version(),
		Baseline:         baseline,
		Candidate:        comparison,
		Comparison:       Compare(baseline, comparison),
	}, nil
}

// VerifyMigrationSafety is a convenience wrapper returning only the
// safety verdict.
func VerifyMigrationSafety[S dtre.State[S], T dtre.Transaction](
	ctx context.Context,
	eng *engine.Engine[S, T],
	txs []T,
	candidate dtre.RuleSet[S, T],
) (bool, error) {
	impact, err := AnalyzeMigrationImpact(ctx, eng, txs, candidate)
	if err != nil {
		return false, err
	}
	return impact.Safe(), nil
}
