package scanner

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/types"
)

// Profit percents beyond this are almost certainly stale or broken quotes.
// They are logged as a data-quality signal but never filtered out.
var extremeProfitThreshold = decimal.NewFromInt(1000)

// FindTriangular searches a ticker snapshot for 3-leg cycles that convert
// baseCoin through two intermediate coins and back. It is a pure function of
// its inputs: no I/O, no shared state, safe to run concurrently per exchange.
//
// Symbols are decomposed by prefix/suffix string matching against the coin
// codes in play. That decomposition is ambiguous when one coin code is a
// substring of another valid code; this follows the convention of matching
// the full remaining prefix/suffix and does not attempt to resolve overlaps.
//
// Results are sorted descending by profit percent. Ties keep generation
// order, which is the lexicographic symbol enumeration order; that order is
// incidental, not a guarantee.
func FindTriangular(tickers types.TickerSnapshot, baseCoin string, startAmount decimal.Decimal) []types.Opportunity {
	if len(tickers) == 0 || startAmount.Sign() <= 0 {
		return nil
	}
	base := strings.ToUpper(baseCoin)

	// Deterministic enumeration order over the snapshot.
	symbols := make([]string, 0, len(tickers))
	for sym := range tickers {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	order := make(map[string]int, len(symbols))
	for i, sym := range symbols {
		order[sym] = i
	}

	// Index the symbol set so legs 2 and 3 scan only plausible candidates
	// instead of the whole snapshot. The candidate sets preserve enumeration
	// order, so results are identical to the naive triple loop.
	idx := newSymbolIndex(symbols, order, base)

	var opportunities []types.Opportunity

	for _, pair1 := range symbols {
		// Leg 1: base -> coinA, buying coinA at pair1's ask.
		if !strings.HasSuffix(pair1, base) {
			continue
		}
		coinA := strings.TrimSuffix(pair1, base)
		if coinA == "" || coinA == base {
			continue
		}
		ask1 := tickers[pair1].Ask
		if ask1.Sign() <= 0 {
			continue
		}
		amountA := startAmount.Div(ask1)
		if amountA.Sign() <= 0 {
			continue
		}

		for _, pair2 := range idx.touching(coinA) {
			if pair2 == pair1 {
				continue
			}

			// Leg 2: coinA -> coinB. A pair quoted in coinA means buying
			// coinB at its ask; a pair based in coinA means selling coinA at
			// its bid. The quoted form wins when both match.
			var (
				coinB   string
				rate2   decimal.Decimal
				amountB decimal.Decimal
				action2 string
				step2   string
			)
			quote2 := tickers[pair2]
			if strings.HasSuffix(pair2, coinA) {
				coinB = strings.TrimSuffix(pair2, coinA)
				if coinB == "" || coinB == base || coinB == coinA {
					continue
				}
				if quote2.Ask.Sign() <= 0 {
					continue
				}
				rate2 = quote2.Ask
				amountB = amountA.Div(rate2)
				action2 = types.SideBuy
				step2 = fmt.Sprintf("BUY %s with %s", coinB, coinA)
			} else if strings.HasPrefix(pair2, coinA) {
				coinB = strings.TrimPrefix(pair2, coinA)
				if coinB == "" || coinB == base || coinB == coinA {
					continue
				}
				if quote2.Bid.Sign() <= 0 {
					continue
				}
				rate2 = quote2.Bid
				amountB = amountA.Mul(rate2)
				action2 = types.SideSell
				step2 = fmt.Sprintf("SELL %s for %s", coinA, coinB)
			} else {
				continue
			}
			if amountB.Sign() <= 0 {
				continue
			}

			for _, pair3 := range idx.closing(coinB) {
				if pair3 == pair1 || pair3 == pair2 {
					continue
				}

				// Leg 3: coinB -> base. Either sell coinB at the bid of
				// coinB/base, or buy base at the ask of base/coinB.
				var (
					finalAmount decimal.Decimal
					rate3       decimal.Decimal
					action3     string
					step3       string
				)
				quote3 := tickers[pair3]
				if strings.HasPrefix(pair3, coinB) && strings.HasSuffix(pair3, base) {
					if quote3.Bid.Sign() <= 0 {
						continue
					}
					rate3 = quote3.Bid
					finalAmount = amountB.Mul(rate3)
					action3 = types.SideSell
					step3 = fmt.Sprintf("SELL %s for %s", coinB, base)
				} else if strings.HasPrefix(pair3, base) && strings.HasSuffix(pair3, coinB) {
					if quote3.Ask.Sign() <= 0 {
						continue
					}
					rate3 = quote3.Ask
					finalAmount = amountB.Div(rate3)
					action3 = types.SideBuy
					step3 = fmt.Sprintf("BUY %s with %s", base, coinB)
				} else {
					continue
				}
				if finalAmount.Sign() <= 0 {
					continue
				}

				profit := finalAmount.Sub(startAmount)
				profitPercent := profit.Div(startAmount).Mul(decimal.NewFromInt(100))

				if profitPercent.Abs().GreaterThan(extremeProfitThreshold) {
					log.Warn().
						Str("service", "scanner").
						Str("path", pair1+"->"+pair2+"->"+pair3).
						Str("profit_percent", profitPercent.StringFixed(4)).
						Msg("extreme profit suggests stale or broken quotes")
				}

				opportunities = append(opportunities, types.Opportunity{
					Path:          []string{pair1, pair2, pair3},
					Coins:         []string{base, coinA, coinB},
					AssetSequence: []string{base, coinA, coinB, base},
					Rates:         []decimal.Decimal{ask1, rate2, rate3},
					Actions:       []string{types.SideBuy, action2, action3},
					Steps: []string{
						fmt.Sprintf("BUY %s with %s using %s @ %s", coinA, base, pair1, ask1.StringFixed(8)),
						fmt.Sprintf("%s using %s @ %s", step2, pair2, rate2.StringFixed(8)),
						fmt.Sprintf("%s using %s @ %s", step3, pair3, rate3.StringFixed(8)),
					},
					IntermediateAmounts: []decimal.Decimal{startAmount, amountA, amountB, finalAmount},
					StartAmount:         startAmount,
					FinalAmount:         finalAmount,
					Profit:              profit,
					ProfitPercent:       profitPercent,
				})
			}
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].ProfitPercent.GreaterThan(opportunities[j].ProfitPercent)
	})
	return opportunities
}

// symbolIndex prunes leg-2/leg-3 candidate sets. touching(coin) lists the
// symbols that start or end with the coin code; closing(coin) lists the
// symbols that can convert the coin back to the base. Both are memoized per
// coin and returned in enumeration order.
type symbolIndex struct {
	symbols      []string
	order        map[string]int
	baseSuffixed []string // symbols ending with the base coin
	basePrefixed []string // symbols starting with the base coin

	mu         sync.Mutex
	touchCache map[string][]string
	closeCache map[string][]string
}

func newSymbolIndex(symbols []string, order map[string]int, base string) *symbolIndex {
	idx := &symbolIndex{
		symbols:    symbols,
		order:      order,
		touchCache: make(map[string][]string),
		closeCache: make(map[string][]string),
	}
	for _, sym := range symbols {
		if strings.HasSuffix(sym, base) {
			idx.baseSuffixed = append(idx.baseSuffixed, sym)
		}
		if strings.HasPrefix(sym, base) {
			idx.basePrefixed = append(idx.basePrefixed, sym)
		}
	}
	return idx
}

func (idx *symbolIndex) touching(coin string) []string {
	idx.mu.Lock()
	cached, ok := idx.touchCache[coin]
	idx.mu.Unlock()
	if ok {
		return cached
	}

	var out []string
	for _, sym := range idx.symbols {
		if strings.HasSuffix(sym, coin) || strings.HasPrefix(sym, coin) {
			out = append(out, sym)
		}
	}

	idx.mu.Lock()
	idx.touchCache[coin] = out
	idx.mu.Unlock()
	return out
}

func (idx *symbolIndex) closing(coin string) []string {
	idx.mu.Lock()
	cached, ok := idx.closeCache[coin]
	idx.mu.Unlock()
	if ok {
		return cached
	}

	var out []string
	seen := make(map[string]bool)
	for _, sym := range idx.baseSuffixed {
		if strings.HasPrefix(sym, coin) && !seen[sym] {
			out = append(out, sym)
			seen[sym] = true
		}
	}
	for _, sym := range idx.basePrefixed {
		if strings.HasSuffix(sym, coin) && !seen[sym] {
			out = append(out, sym)
			seen[sym] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return idx.order[out[i]] < idx.order[out[j]] })

	idx.mu.Lock()
	idx.closeCache[coin] = out
	idx.mu.Unlock()
	return out
}
