package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
	"github.com/ledgerwatchdog/dtre/ledger"
)

var ledgerTime = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestStateCloneIsDeep(t *testing.T) {
	original := ledger.NewState(map[string]int64{"alice": 100})
	clone := original.Clone()

	clone.Accounts["alice"] = 999
	assert.Equal(t, int64(100), original.Balance("alice"))
}

func TestStateCanonicalBytesInsertionOrderIndependent(t *testing.T) {
	a := ledger.State{Accounts: map[string]int64{"alice": 1, "bob": 2, "carol": 3}}
	b := ledger.State{Accounts: map[string]int64{"carol": 3, "bob": 2, "alice": 1}}

	ab, err := a.MarshalCanonical()
	require.NoError(t, err)
	bb, err := b.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestStateCanonicalForm(t *testing.T) {
	s := ledger.NewState(map[string]int64{"bob": 700, "alice": 950})

	b, err := s.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"accounts":{"alice":950,"bob":700}}`, string(b))
}

func TestStateValidateRejectsNegativeBalance(t *testing.T) {
	valid := ledger.NewState(map[string]int64{"alice": 0})
	assert.NoError(t, valid.Validate())

	invalid := ledger.NewState(map[string]int64{"alice": -1})
	assert.Error(t, invalid.Validate())
}

func TestStateValidateIsIdempotent(t *testing.T) {
	s := ledger.NewState(map[string]int64{"alice": 10})
	assert.Equal(t, s.Validate(), s.Validate())

	bad := ledger.NewState(map[string]int64{"alice": -1})
	first := bad.Validate()
	second := bad.Validate()
	require.Error(t, first)
	assert.Equal(t, first.Error(), second.Error())
}

func TestDecodeStateRoundTrip(t *testing.T) {
	s := ledger.NewState(map[string]int64{"alice": 950, "bob": 700})

	b, err := s.MarshalCanonical()
	require.NoError(t, err)

	decoded, err := ledger.DecodeState(b)
	require.NoError(t, err)
	assert.Equal(t, int64(950), decoded.Balance("alice"))
	assert.Equal(t, int64(700), decoded.Balance("bob"))

	rehashed, err := hasher.SumState(decoded)
	require.NoError(t, err)
	original, err := hasher.SumState(s)
	require.NoError(t, err)
	assert.Equal(t, original, rehashed)
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	_, err := ledger.DecodeState([]byte("not json"))
	assert.Error(t, err)
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		tx      ledger.Transaction
		wantErr bool
	}{
		{"valid credit", ledger.Transaction{TxID: "t", Kind: ledger.Credit, To: "a", Amount: 1}, false},
		{"valid debit", ledger.Transaction{TxID: "t", Kind: ledger.Debit, From: "a", Amount: 1}, false},
		{"valid transfer", ledger.Transaction{TxID: "t", Kind: ledger.Transfer, From: "a", To: "b", Amount: 1}, false},
		{"missing id", ledger.Transaction{Kind: ledger.Credit, To: "a", Amount: 1}, true},
		{"zero amount", ledger.Transaction{TxID: "t", Kind: ledger.Credit, To: "a", Amount: 0}, true},
		{"negative amount", ledger.Transaction{TxID: "t", Kind: ledger.Credit, To: "a", Amount: -5}, true},
		{"credit without destination", ledger.Transaction{TxID: "t", Kind: ledger.Credit, Amount: 1}, true},
		{"debit without source", ledger.Transaction{TxID: "t", Kind: ledger.Debit, Amount: 1}, true},
		{"transfer to self", ledger.Transaction{TxID: "t", Kind: ledger.Transfer, From: "a", To: "a", Amount: 1}, true},
		{"unknown kind", ledger.Transaction{TxID: "t", Kind: "swap", From: "a", To: "b", Amount: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoreRulesApply(t *testing.T) {
	state := ledger.NewState(map[string]int64{"alice": 1000, "bob": 500})
	ctx := dtre.NewExecutionContext(ledgerTime, 0)
	ctx.Seal()

	next, err := ledger.CoreRules{}.Apply(state, ledger.Transaction{
		TxID: "t", Kind: ledger.Transfer, From: "alice", To: "bob", Amount: 300, Time: ledgerTime,
	}, ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(700), next.Balance("alice"))
	assert.Equal(t, int64(800), next.Balance("bob"))
	assert.Equal(t, int64(1000), state.Balance("alice"), "apply must not mutate its input")
}

func TestFeeRulesChargeDefaultFee(t *testing.T) {
	state := ledger.NewState(map[string]int64{"alice": 1000, "bob": 0})
	ctx := dtre.NewExecutionContext(ledgerTime, 0)
	ctx.Seal()

	next, err := ledger.FeeRules{}.Apply(state, ledger.Transaction{
		TxID: "t", Kind: ledger.Transfer, From: "alice", To: "bob", Amount: 500, Time: ledgerTime,
	}, ctx)
	require.NoError(t, err)

	// 1% of 500 = 5.
	assert.Equal(t, int64(495), next.Balance("alice"))
	assert.Equal(t, int64(500), next.Balance("bob"))
	assert.Equal(t, int64(5), next.Balance(ledger.FeeAccount))
}

func TestFeeRulesReadFeeFact(t *testing.T) {
	state := ledger.NewState(map[string]int64{"alice": 1000, "bob": 0})
	ctx := dtre.NewExecutionContext(ledgerTime, 0)
	require.NoError(t, ctx.AddExternalFact(ledger.FactFeeBps, int64(250)))
	ctx.Seal()

	next, err := ledger.FeeRules{}.Apply(state, ledger.Transaction{
		TxID: "t", Kind: ledger.Transfer, From: "alice", To: "bob", Amount: 400, Time: ledgerTime,
	}, ctx)
	require.NoError(t, err)

	// 2.5% of 400 = 10.
	assert.Equal(t, int64(590), next.Balance("alice"))
	assert.Equal(t, int64(10), next.Balance(ledger.FeeAccount))
}

func TestFeeRulesCreditsAndDebitsAreFeeFree(t *testing.T) {
	state := ledger.NewState(map[string]int64{"alice": 100})
	ctx := dtre.NewExecutionContext(ledgerTime, 0)
	ctx.Seal()

	next, err := ledger.FeeRules{}.Apply(state, ledger.Transaction{
		TxID: "t", Kind: ledger.Credit, To: "alice", Amount: 50, Time: ledgerTime,
	}, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), next.Balance("alice"))
	assert.Equal(t, int64(0), next.Balance(ledger.FeeAccount))
}

func TestRuleVersions(t *testing.T) {
	assert.Equal(t, dtre.NewVersion(1, 0, 0), ledger.CoreRules{}.Version())
	assert.Equal(t, dtre.NewVersion(2, 0, 0), ledger.FeeRules{}.Version())
}
