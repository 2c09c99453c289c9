// Package dtretest provides test helpers for the determinism envelope:
// a purity witness that double-applies rules, and assertions over
// replay results.
package dtretest

import (
	"fmt"
	"testing"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// CheckPurity applies rules twice to identical (state, transaction,
// context) inputs and reports any observable difference. Each
// application gets a freshly-derived substream for the same index, so a
// rule that draws randomness legitimately still passes; a rule that
// keeps hidden state, consults a clock, or reads shared mutable data
// does not.
//
// The engine cannot prove purity. This witness catches the common
// violations; a nil return is evidence, not proof.
func CheckPurity[S dtre.State[S], T dtre.Transaction](
	rules dtre.RuleSet[S, T],
	state S,
	tx T,
	ctx *dtre.ExecutionContext,
) error {
	first, err := rules.Apply(state.Clone(), tx, ctx.ForTransaction(0))
	if err != nil {
		return fmt.Errorf("first application failed: %w", err)
	}
	second, err := rules.Apply(state.Clone(), tx, ctx.ForTransaction(0))
	if err != nil {
		return fmt.Errorf("second application failed: %w", err)
	}

	firstBytes, err := first.MarshalCanonical()
	if err != nil {
		return fmt.Errorf("first result failed to serialize: %w", err)
	}
	secondBytes, err := second.MarshalCanonical()
	if err != nil {
		return fmt.Errorf("second result failed to serialize: %w", err)
	}

	if !hasher.EqualBytes(firstBytes, secondBytes) {
		return fmt.Errorf(
			"rule %s is not pure: double application of %s produced different states (%s vs %s)",
			rules.Version(), tx.ID(),
			hasher.Sum(firstBytes), hasher.Sum(secondBytes))
	}
	return nil
}

// AssertPure fails the test if CheckPurity reports a violation.
func AssertPure[S dtre.State[S], T dtre.Transaction](
	t testing.TB,
	rules dtre.RuleSet[S, T],
	state S,
	tx T,
	ctx *dtre.ExecutionContext,
) {
	t.Helper()
	if err := CheckPurity(rules, state, tx, ctx); err != nil {
		t.Fatalf("purity witness failed: %v", err)
	}
}

// RequireEqualResults fails the test unless two replay results carry
// identical final hashes, chained hashes, and transition counts.
func RequireEqualResults[S dtre.State[S]](t testing.TB, a, b *engine.ReplayResult[S]) {
	t.Helper()
	if !a.FinalHash.Equal(b.FinalHash) {
		t.Fatalf("final hashes differ: %s vs %s", a.FinalHash, b.FinalHash)
	}
	if !a.Trace.ChainedHash.Equal(b.Trace.ChainedHash) {
		t.Fatalf("chained hashes differ: %s vs %s", a.Trace.ChainedHash, b.Trace.ChainedHash)
	}
	if len(a.Trace.Transitions) != len(b.Trace.Transitions) {
		t.Fatalf("transition counts differ: %d vs %d",
			len(a.Trace.Transitions), len(b.Trace.Transitions))
	}
}
