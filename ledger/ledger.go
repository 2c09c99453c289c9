// Package ledger is the reference instantiation of the replay engine:
// an account ledger in integer minor units, transfer-style
// transactions, and two rule versions used throughout the tests and the
// CLI. It doubles as the worked example of how to satisfy the
// dtre.State and dtre.Transaction capability bundles.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerwatchdog/dtre/hasher"
)

// State maps account ids to balances in minor units. The zero balance
// and an absent account are indistinguishable to rules; accounts are
// materialized on first touch.
type State struct {
	Accounts map[string]int64
}

// NewState copies accounts into a fresh State.
func NewState(accounts map[string]int64) State {
	s := State{Accounts: make(map[string]int64, len(accounts))}
	for k, v := range accounts {
		s.Accounts[k] = v
	}
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return NewState(s.Accounts)
}

// Balance returns the balance of account, zero if absent.
func (s State) Balance(account string) int64 {
	return s.Accounts[account]
}

// MarshalCanonical encodes the ledger canonically. Map iteration order
// never leaks: the canonical object sorts keys.
func (s State) MarshalCanonical() ([]byte, error) {
	accounts := make(hasher.Object, len(s.Accounts))
	for id, balance := range s.Accounts {
		accounts[id] = hasher.Int(balance)
	}
	return hasher.MarshalCanonical(hasher.Object{"accounts": accounts})
}

// Validate rejects negative balances.
func (s State) Validate() error {
	for id, balance := range s.Accounts {
		if balance < 0 {
			return fmt.Errorf("account %q has negative balance %d", id, balance)
		}
	}
	return nil
}

// DecodeState reconstructs a State from its canonical bytes.
func DecodeState(b []byte) (State, error) {
	var raw struct {
		Accounts map[string]int64 `json:"accounts"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return State{}, fmt.Errorf("decode ledger state: %w", err)
	}
	if raw.Accounts == nil {
		raw.Accounts = make(map[string]int64)
	}
	return State{Accounts: raw.Accounts}, nil
}

// Kind discriminates transaction types.
type Kind string

const (
	// Credit adds funds to To from outside the ledger.
	Credit Kind = "credit"
	// Debit removes funds from From out of the ledger.
	Debit Kind = "debit"
	// Transfer moves funds from From to To.
	Transfer Kind = "transfer"
)

// Transaction is one ledger movement. Amounts are positive minor
// units; direction is carried by Kind.
type Transaction struct {
	TxID   string
	Kind   Kind
	From   string
	To     string
	Amount int64
	Time   time.Time
}

// ID returns the unique transaction id.
func (t Transaction) ID() string {
	return t.TxID
}

// Timestamp returns the transaction's UTC timestamp.
func (t Transaction) Timestamp() time.Time {
	return t.Time.UTC()
}

// Validate checks structural well-formedness. Balance sufficiency is a
// state invariant, not a transaction property: an overdraft surfaces as
// an invalid post-transaction state.
func (t Transaction) Validate() error {
	if t.TxID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", t.Amount)
	}
	switch t.Kind {
	case Credit:
		if t.To == "" {
			return fmt.Errorf("credit requires a destination account")
		}
	case Debit:
		if t.From == "" {
			return fmt.Errorf("debit requires a source account")
		}
	case Transfer:
		if t.From == "" || t.To == "" {
			return fmt.Errorf("transfer requires source and destination accounts")
		}
		if t.From == t.To {
			return fmt.Errorf("transfer source and destination must differ")
		}
	default:
		return fmt.Errorf("unknown transaction kind %q", t.Kind)
	}
	return nil
}
