package ledger_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/compare"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/hasher"
	"github.com/ledgerwatchdog/dtre/ledger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildEngine(
	t *testing.T,
	initial ledger.State,
	rules dtre.RuleSet[ledger.State, ledger.Transaction],
	opts ...func(*engine.Builder[ledger.State, ledger.Transaction]),
) *engine.Engine[ledger.State, ledger.Transaction] {
	t.Helper()
	b := engine.NewBuilder[ledger.State, ledger.Transaction]().
		WithInitialState(initial).
		WithRuleSet(rules).
		WithContext(dtre.NewExecutionContext(ledgerTime, 42)).
		WithLogger(quietLogger())
	for _, opt := range opts {
		opt(b)
	}
	eng, err := b.Build()
	require.NoError(t, err)
	return eng
}

// creditSeries builds n deterministic credits spread across 10
// accounts.
func creditSeries(n int) []ledger.Transaction {
	txs := make([]ledger.Transaction, n)
	for i := range txs {
		txs[i] = ledger.Transaction{
			TxID:   fmt.Sprintf("t%04d", i),
			Kind:   ledger.Credit,
			To:     fmt.Sprintf("acct-%d", i%10),
			Amount: int64(i%97 + 1),
			Time:   ledgerTime,
		}
	}
	return txs
}

func TestEmptySequenceReturnsInitialState(t *testing.T) {
	initial := ledger.NewState(map[string]int64{"balance": 0})
	eng := buildEngine(t, initial, ledger.CoreRules{})

	result, err := eng.Replay(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Trace.Transitions)
	assert.Equal(t, int64(0), result.FinalState.Balance("balance"))

	initialHash, err := hasher.SumState(initial)
	require.NoError(t, err)
	assert.Equal(t, initialHash, result.FinalHash)
}

func TestSingleCreditIsDeterministic(t *testing.T) {
	eng := buildEngine(t, ledger.NewState(map[string]int64{"acct": 0}), ledger.CoreRules{})
	txs := []ledger.Transaction{
		{TxID: "t1", Kind: ledger.Credit, To: "acct", Amount: 100, Time: ledgerTime},
	}

	first, err := eng.Replay(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.FinalState.Balance("acct"))

	second, err := eng.Replay(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, first.FinalHash, second.FinalHash)
	assert.Equal(t, first.Trace.ChainedHash, second.Trace.ChainedHash)
}

func TestOverdraftIsRejectedWithoutCommitting(t *testing.T) {
	eng := buildEngine(t, ledger.NewState(map[string]int64{"acct": 0}), ledger.CoreRules{})
	txs := []ledger.Transaction{
		{TxID: "t1", Kind: ledger.Debit, From: "acct", Amount: 1, Time: ledgerTime},
	}

	result, err := eng.Replay(context.Background(), txs)
	require.Error(t, err)
	assert.True(t, dtre.IsInvalidState(err))
	assert.Empty(t, result.Trace.Transitions)
}

func TestCheckpointsAtConfiguredIntervals(t *testing.T) {
	eng := buildEngine(t, ledger.NewState(nil), ledger.CoreRules{})
	txs := creditSeries(2500)

	result, err := eng.ReplayWithCheckpoints(context.Background(), txs, 1000)
	require.NoError(t, err)

	require.Len(t, result.Checkpoints, 2)
	assert.Equal(t, 1000, result.Checkpoints[0].Index)
	assert.Equal(t, 2000, result.Checkpoints[1].Index)

	// Restore the first checkpoint and apply the suffix: identical
	// final hash to the full replay.
	cp := result.Checkpoints[0]
	resumed, err := eng.ReplayFromCheckpoint(context.Background(), cp, txs[1000:])
	require.NoError(t, err)
	assert.Equal(t, result.FinalHash, resumed.FinalHash)
}

func TestParallelEquivalenceOnIndependentAccounts(t *testing.T) {
	// 10k credits over independent account keys; parallel output must
	// be byte-identical to sequential.
	txs := make([]ledger.Transaction, 10_000)
	for i := range txs {
		txs[i] = ledger.Transaction{
			TxID:   fmt.Sprintf("t%05d", i),
			Kind:   ledger.Credit,
			To:     fmt.Sprintf("acct-%d", i%500),
			Amount: int64((i*7919)%1000 + 1),
			Time:   ledgerTime,
		}
	}

	seq := buildEngine(t, ledger.NewState(nil), ledger.CoreRules{})
	sequential, err := seq.Replay(context.Background(), txs)
	require.NoError(t, err)

	par := buildEngine(t, ledger.NewState(nil), ledger.CoreRules{},
		func(b *engine.Builder[ledger.State, ledger.Transaction]) { b.WithParallelism(8) })
	parallel, err := par.ReplayParallel(context.Background(), txs)
	require.NoError(t, err)

	assert.Equal(t, sequential.FinalHash, parallel.FinalHash)
	assert.Equal(t, sequential.Trace.ChainedHash, parallel.Trace.ChainedHash)
}

func TestRuleMigrationDivergesAtFirstFeeBearingTransaction(t *testing.T) {
	initial := ledger.NewState(map[string]int64{"alice": 100_000, "bob": 50_000})
	eng := buildEngine(t, initial, ledger.CoreRules{})

	txs := []ledger.Transaction{
		{TxID: "t1", Kind: ledger.Credit, To: "alice", Amount: 1_000, Time: ledgerTime},
		{TxID: "t2", Kind: ledger.Credit, To: "bob", Amount: 2_000, Time: ledgerTime},
		{TxID: "t3", Kind: ledger.Transfer, From: "alice", To: "bob", Amount: 5_000, Time: ledgerTime},
		{TxID: "t4", Kind: ledger.Transfer, From: "bob", To: "alice", Amount: 1_000, Time: ledgerTime},
	}

	impact, err := compare.AnalyzeMigrationImpact(context.Background(), eng, txs, ledger.FeeRules{})
	require.NoError(t, err)

	assert.False(t, impact.Comparison.FinalHashEqual)
	require.NotNil(t, impact.Comparison.FirstDivergenceIndex)
	assert.Equal(t, 2, *impact.Comparison.FirstDivergenceIndex,
		"credits match under both versions; t3 is the first fee-bearing transfer")
}

func TestReplayResultIsSelfDescribing(t *testing.T) {
	eng := buildEngine(t, ledger.NewState(map[string]int64{"acct": 10}), ledger.CoreRules{})
	txs := creditSeries(5)

	result, err := eng.Replay(context.Background(), txs)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Metrics.TransactionsProcessed)
	assert.Equal(t, 5, len(result.Trace.RuleApplications))
	finalHash, err := hasher.SumState(result.FinalState)
	require.NoError(t, err)
	assert.Equal(t, finalHash, result.FinalHash)
}
