package cli

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/ledger"
)

// scenarioSchema constrains scenario files. Amounts are integer minor
// units; floats never appear in a scenario.
const scenarioSchema = `
#Transaction: {
	id:     string & !=""
	kind:   "credit" | "debit" | "transfer"
	from?:  string
	to?:    string
	amount: int & >0
	time?:  string
}

#Scenario: {
	name:  string & !=""
	seed:  int & >=0 | *0
	time:  string
	rules: string | *"1.0.0"
	fee_bps?: int & >=0
	initial: accounts: [string]: int
	transactions: [...#Transaction]
}
`

// Scenario is a decoded replay scenario: everything needed to rebuild
// the exact same replay anywhere.
type Scenario struct {
	Name         string
	Seed         uint64
	Time         time.Time
	RulesVersion dtre.Version
	FeeBps       *int64
	Initial      ledger.State
	Transactions []ledger.Transaction
}

// rawScenario is the CUE decoding target.
type rawScenario struct {
	Name    string `json:"name"`
	Seed    int64  `json:"seed"`
	Time    string `json:"time"`
	Rules   string `json:"rules"`
	FeeBps  *int64 `json:"fee_bps"`
	Initial struct {
		Accounts map[string]int64 `json:"accounts"`
	} `json:"initial"`
	Transactions []struct {
		ID     string `json:"id"`
		Kind   string `json:"kind"`
		From   string `json:"from"`
		To     string `json:"to"`
		Amount int64  `json:"amount"`
		Time   string `json:"time"`
	} `json:"transactions"`
}

// LoadScenario loads and validates a scenario from a CUE file.
func LoadScenario(path string) (*Scenario, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario not readable: %s", path), err)
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(scenarioSchema)
	if schema.Err() != nil {
		return nil, fmt.Errorf("internal schema error: %w", schema.Err())
	}

	value := cuectx.CompileBytes(source)
	if value.Err() != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed to parse", path), value.Err())
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(value)
	if err := unified.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s is invalid", path), err)
	}

	var raw rawScenario
	if err := unified.Decode(&raw); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed to decode", path), err)
	}

	return buildScenario(raw)
}

func buildScenario(raw rawScenario) (*Scenario, error) {
	ts, err := time.Parse(time.RFC3339, raw.Time)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario time %q is not RFC 3339", raw.Time), err)
	}
	version, err := dtre.ParseVersion(raw.Rules)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario rules version %q is invalid", raw.Rules), err)
	}

	s := &Scenario{
		Name:         raw.Name,
		Seed:         uint64(raw.Seed),
		Time:         ts.UTC(),
		RulesVersion: version,
		FeeBps:       raw.FeeBps,
		Initial:      ledger.NewState(raw.Initial.Accounts),
	}

	for i, t := range raw.Transactions {
		txTime := s.Time
		if t.Time != "" {
			txTime, err = time.Parse(time.RFC3339, t.Time)
			if err != nil {
				return nil, WrapExitError(ExitCommandError,
					fmt.Sprintf("transaction %d time %q is not RFC 3339", i, t.Time), err)
			}
		}
		s.Transactions = append(s.Transactions, ledger.Transaction{
			TxID:   t.ID,
			Kind:   ledger.Kind(t.Kind),
			From:   t.From,
			To:     t.To,
			Amount: t.Amount,
			Time:   txTime.UTC(),
		})
	}
	return s, nil
}

// Context builds the sealed-to-be execution context a scenario
// describes: frozen time, seed, and the fee fact when present.
func (s *Scenario) Context() *dtre.ExecutionContext {
	ctx := dtre.NewExecutionContext(s.Time, s.Seed)
	if s.FeeBps != nil {
		// Context is freshly constructed and still open; adding cannot fail.
		_ = ctx.AddExternalFact(ledger.FactFeeBps, *s.FeeBps)
	}
	return ctx
}
