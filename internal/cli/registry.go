package cli

import (
	"time"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/ledger"
	"github.com/ledgerwatchdog/dtre/rules"
)

// rulesEpoch stamps built-in rule metadata. Fixed so metadata digests
// are stable across builds.
var rulesEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// BuiltinRegistry returns the registry of rule sets the CLI knows:
// ledger rules 1.0.0 (fee-free) and 2.0.0 (fee-bearing transfers).
func BuiltinRegistry() *rules.Registry[ledger.State, ledger.Transaction] {
	reg := rules.NewRegistry[ledger.State, ledger.Transaction]()

	// Registering fixed distinct versions cannot collide.
	_ = reg.Register(rules.NewVersionedRuleSet[ledger.State, ledger.Transaction](
		dtre.NewVersion(1, 0, 0),
		ledger.CoreRules{},
		rules.NewMetadata("ledger-core", "credits, debits, fee-free transfers", rulesEpoch),
	))
	_ = reg.Register(rules.NewVersionedRuleSet[ledger.State, ledger.Transaction](
		dtre.NewVersion(2, 0, 0),
		ledger.FeeRules{},
		rules.NewMetadata("ledger-fees", "transfers pay a basis-point fee", rulesEpoch),
	))
	return reg
}
