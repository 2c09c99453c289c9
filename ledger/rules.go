package ledger

import (
	"fmt"

	"github.com/ledgerwatchdog/dtre"
)

// FeeAccount collects transfer fees under the fee-bearing rules.
const FeeAccount = "fees"

// FactFeeBps is the external-fact key overriding the default fee rate.
const FactFeeBps = "fee_bps"

const defaultFeeBps = 100 // 1%

// CoreRules is rule version 1.0.0: credits, debits, and fee-free
// transfers. Apply is pure; it reads nothing outside its arguments.
type CoreRules struct{}

// Version returns 1.0.0.
func (CoreRules) Version() dtre.Version {
	return dtre.NewVersion(1, 0, 0)
}

// Apply moves funds according to the transaction kind.
func (CoreRules) Apply(state State, tx Transaction, _ *dtre.ExecutionContext) (State, error) {
	next := state.Clone()
	switch tx.Kind {
	case Credit:
		next.Accounts[tx.To] += tx.Amount
	case Debit:
		next.Accounts[tx.From] -= tx.Amount
	case Transfer:
		next.Accounts[tx.From] -= tx.Amount
		next.Accounts[tx.To] += tx.Amount
	default:
		return State{}, fmt.Errorf("unsupported transaction kind %q", tx.Kind)
	}
	return next, nil
}

// FeeRules is rule version 2.0.0: like CoreRules, but transfers pay a
// basis-point fee out of the source account into FeeAccount. The rate
// comes from the fee_bps external fact when present, else 1%.
type FeeRules struct{}

// Version returns 2.0.0.
func (FeeRules) Version() dtre.Version {
	return dtre.NewVersion(2, 0, 0)
}

// Apply moves funds and charges the transfer fee.
func (FeeRules) Apply(state State, tx Transaction, ctx *dtre.ExecutionContext) (State, error) {
	next := state.Clone()
	switch tx.Kind {
	case Credit:
		next.Accounts[tx.To] += tx.Amount
	case Debit:
		next.Accounts[tx.From] -= tx.Amount
	case Transfer:
		fee := tx.Amount * feeBps(ctx) / 10_000
		next.Accounts[tx.From] -= tx.Amount + fee
		next.Accounts[tx.To] += tx.Amount
		if fee > 0 {
			next.Accounts[FeeAccount] += fee
		}
	default:
		return State{}, fmt.Errorf("unsupported transaction kind %q", tx.Kind)
	}
	return next, nil
}

func feeBps(ctx *dtre.ExecutionContext) int64 {
	if ctx == nil {
		return defaultFeeBps
	}
	if v, ok := ctx.ExternalFact(FactFeeBps); ok {
		if bps, ok := v.(int64); ok {
			return bps
		}
	}
	return defaultFeeBps
}
