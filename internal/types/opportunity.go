package types

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Opportunity is a single triangular arbitrage cycle found in a ticker
// snapshot: three legs converting the base coin through two intermediate
// coins and back. It is immutable once produced by the finder; the engine
// executes it as-is and stores a snapshot copy on the trade attempt.
type Opportunity struct {
	Exchange            string            `json:"exchange,omitempty"`
	Path                []string          `json:"path"`
	Coins               []string          `json:"coins"`
	AssetSequence       []string          `json:"asset_sequence"`
	Rates               []decimal.Decimal `json:"rates"`
	Actions             []string          `json:"actions"`
	Steps               []string          `json:"steps_description"`
	IntermediateAmounts []decimal.Decimal `json:"intermediate_amounts"`
	StartAmount         decimal.Decimal   `json:"start_amount"`
	FinalAmount         decimal.Decimal   `json:"final_amount"`
	Profit              decimal.Decimal   `json:"profit"`
	ProfitPercent       decimal.Decimal   `json:"profit_percent"`
}

var (
	ErrMalformedOpportunity = errors.New("malformed opportunity")
)

// Validate checks the structural invariants the engine relies on: three
// pairwise-distinct pairs, three rates and actions, and a closed four-element
// asset sequence that starts and ends at the same coin.
func (o *Opportunity) Validate() error {
	if len(o.Path) != 3 || len(o.Rates) != 3 || len(o.Actions) != 3 {
		return ErrMalformedOpportunity
	}
	if o.Path[0] == o.Path[1] || o.Path[1] == o.Path[2] || o.Path[0] == o.Path[2] {
		return ErrMalformedOpportunity
	}
	if len(o.AssetSequence) != 4 || o.AssetSequence[0] != o.AssetSequence[3] {
		return ErrMalformedOpportunity
	}
	for _, a := range o.Actions {
		if a != SideBuy && a != SideSell {
			return ErrMalformedOpportunity
		}
	}
	for _, r := range o.Rates {
		if r.Sign() <= 0 {
			return ErrMalformedOpportunity
		}
	}
	return nil
}
