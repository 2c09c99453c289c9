package ledger_test

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/hasher"
	"github.com/ledgerwatchdog/dtre/ledger"
)

// traceSnapshot renders a replay result as canonical bytes for golden
// comparison: the scenario name, the committed transaction ids, and
// the final balances. Hashes are excluded so the goldens stay
// human-auditable.
func traceSnapshot(t *testing.T, name string, result *engine.ReplayResult[ledger.State]) []byte {
	t.Helper()

	txIDs := make(hasher.Array, len(result.Trace.Transitions))
	for i, tr := range result.Trace.Transitions {
		txIDs[i] = hasher.Str(tr.TransactionID)
	}
	accounts := make(hasher.Object, len(result.FinalState.Accounts))
	for id, balance := range result.FinalState.Accounts {
		accounts[id] = hasher.Int(balance)
	}

	snapshot, err := hasher.MarshalCanonical(hasher.Object{
		"scenario":     hasher.Str(name),
		"transactions": txIDs,
		"final_state":  hasher.Object{"accounts": accounts},
	})
	require.NoError(t, err)
	return snapshot
}

func goldenTxs() []ledger.Transaction {
	return []ledger.Transaction{
		{TxID: "t1", Kind: ledger.Credit, To: "alice", Amount: 250, Time: ledgerTime},
		{TxID: "t2", Kind: ledger.Transfer, From: "alice", To: "bob", Amount: 300, Time: ledgerTime},
		{TxID: "t3", Kind: ledger.Debit, From: "bob", Amount: 100, Time: ledgerTime},
	}
}

func goldenAssert(t *testing.T, name string, rules dtre.RuleSet[ledger.State, ledger.Transaction]) {
	t.Helper()

	eng := buildEngine(t, ledger.NewState(map[string]int64{"alice": 1000, "bob": 500}), rules)
	result, err := eng.Replay(context.Background(), goldenTxs())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceSnapshot(t, name, result))
}

func TestGoldenCoreFlow(t *testing.T) {
	goldenAssert(t, "core-flow", ledger.CoreRules{})
}

func TestGoldenFeeFlow(t *testing.T) {
	goldenAssert(t, "fee-flow", ledger.FeeRules{})
}
