package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Conservative fallback applied when a pair has no recorded rule. Precision 8
// and a 1.0 minimum notional reject nothing an exchange would accept.
const DefaultBasePrecision = 8

var (
	defaultMinQty      = decimal.RequireFromString("0.000001")
	defaultMinNotional = decimal.RequireFromString("1.0")
)

// Catalog serves per-(exchange, pair) trading rules from an in-memory copy of
// the rules table. Lookups never touch the database; Replace swaps an
// exchange's rule set atomically and refreshes the copy.
type Catalog struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]PairRule
}

func NewCatalog(db *gorm.DB) (*Catalog, error) {
	c := &Catalog{db: db}
	if err := c.seedDefaults(); err != nil {
		return nil, fmt.Errorf("failed to seed pair rules: %w", err)
	}
	if err := c.reload(); err != nil {
		return nil, fmt.Errorf("failed to load pair rules: %w", err)
	}
	return c, nil
}

// Get returns the rule for the given exchange and pair, falling back to the
// documented conservative default when the pair is unknown.
func (c *Catalog) Get(exchange, pair string) PairRule {
	c.mu.RLock()
	rule, ok := c.cache[cacheKey(exchange, pair)]
	c.mu.RUnlock()
	if ok {
		return rule
	}
	return PairRule{
		Exchange:      exchange,
		Pair:          pair,
		BasePrecision: DefaultBasePrecision,
		MinQty:        defaultMinQty,
		MinNotional:   defaultMinNotional,
	}
}

// Replace swaps the full rule set for one exchange inside a single
// transaction, then refreshes the in-memory copy. This is the catalog's only
// mutation path; there is no in-place editing of individual rules.
func (c *Catalog) Replace(exchange string, ruleSet []PairRule) error {
	logger := log.With().Str("service", "rules").Str("exchange", exchange).Logger()

	// Work on a copy; the caller keeps ownership of its slice.
	rows := make([]PairRule, len(ruleSet))
	copy(rows, ruleSet)

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("exchange = ?", exchange).Delete(&PairRule{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].Exchange = exchange
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to replace rule set")
		return err
	}

	if err := c.reload(); err != nil {
		return err
	}
	logger.Info().Int("rules", len(ruleSet)).Msg("rule set replaced")
	return nil
}

func (c *Catalog) reload() error {
	var all []PairRule
	if err := c.db.Find(&all).Error; err != nil {
		return err
	}
	next := make(map[string]PairRule, len(all))
	for _, r := range all {
		next[cacheKey(r.Exchange, r.Pair)] = r
	}
	c.mu.Lock()
	c.cache = next
	c.mu.Unlock()
	return nil
}

// seedDefaults installs a starter rule set for the known exchanges when the
// table is empty.
func (c *Catalog) seedDefaults() error {
	var count int64
	if err := c.db.Model(&PairRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []PairRule{
		{Exchange: "binance", Pair: "BTCUSDT", BasePrecision: 8, MinQty: decimal.RequireFromString("0.00001"), MinNotional: decimal.RequireFromString("10.0")},
		// ETHBTC notional is denominated in BTC, not USDT.
		{Exchange: "binance", Pair: "ETHBTC", BasePrecision: 8, MinQty: decimal.RequireFromString("0.0001"), MinNotional: decimal.RequireFromString("0.0001")},
		{Exchange: "binance", Pair: "ETHUSDT", BasePrecision: 8, MinQty: decimal.RequireFromString("0.0001"), MinNotional: decimal.RequireFromString("10.0")},
		{Exchange: "bybit", Pair: "BTCUSDT", BasePrecision: 8, MinQty: decimal.RequireFromString("0.00001"), MinNotional: decimal.RequireFromString("1.0")},
		{Exchange: "bybit", Pair: "ETHBTC", BasePrecision: 8, MinQty: decimal.RequireFromString("0.0001"), MinNotional: decimal.RequireFromString("0.0001")},
		{Exchange: "bybit", Pair: "ETHUSDT", BasePrecision: 8, MinQty: decimal.RequireFromString("0.0001"), MinNotional: decimal.RequireFromString("1.0")},
	}
	return c.db.Create(&seed).Error
}

func cacheKey(exchange, pair string) string {
	return strings.ToLower(exchange) + ":" + strings.ToUpper(pair)
}
