package rules

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rules_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&PairRule{}))

	catalog, err := NewCatalog(db)
	require.NoError(t, err)
	return catalog
}

func TestCatalog(t *testing.T) {
	t.Run("seeded rules are served from the cache", func(t *testing.T) {
		catalog := newTestCatalog(t)

		rule := catalog.Get("binance", "BTCUSDT")
		assert.Equal(t, 8, rule.BasePrecision)
		assert.True(t, rule.MinQty.Equal(decimal.RequireFromString("0.00001")))
		assert.True(t, rule.MinNotional.Equal(decimal.RequireFromString("10.0")))
	})

	t.Run("lookup is case insensitive on both keys", func(t *testing.T) {
		catalog := newTestCatalog(t)

		upper := catalog.Get("BINANCE", "btcusdt")
		lower := catalog.Get("binance", "BTCUSDT")
		assert.True(t, upper.MinQty.Equal(lower.MinQty))
		assert.True(t, upper.MinNotional.Equal(lower.MinNotional))
	})

	t.Run("unknown pair falls back to the conservative default", func(t *testing.T) {
		catalog := newTestCatalog(t)

		rule := catalog.Get("binance", "DOGEUSDT")
		assert.Equal(t, DefaultBasePrecision, rule.BasePrecision)
		assert.True(t, rule.MinQty.Equal(defaultMinQty))
		assert.True(t, rule.MinNotional.Equal(defaultMinNotional))
	})

	t.Run("replace swaps an exchange's rule set atomically", func(t *testing.T) {
		catalog := newTestCatalog(t)

		err := catalog.Replace("binance", []PairRule{
			{Pair: "SOLUSDT", BasePrecision: 4, MinQty: decimal.RequireFromString("0.01"), MinNotional: decimal.RequireFromString("5.0")},
		})
		require.NoError(t, err)

		rule := catalog.Get("binance", "SOLUSDT")
		assert.Equal(t, 4, rule.BasePrecision)
		assert.True(t, rule.MinNotional.Equal(decimal.RequireFromString("5.0")))

		// The old binance rules are gone; lookups fall back to defaults.
		old := catalog.Get("binance", "BTCUSDT")
		assert.True(t, old.MinQty.Equal(defaultMinQty))

		// Other exchanges are untouched.
		bybit := catalog.Get("bybit", "BTCUSDT")
		assert.True(t, bybit.MinQty.Equal(decimal.RequireFromString("0.00001")))
	})

	t.Run("replace leaves the caller's slice untouched", func(t *testing.T) {
		catalog := newTestCatalog(t)

		input := []PairRule{
			{Pair: "SOLUSDT", Exchange: "someone-elses-label", BasePrecision: 4, MinQty: decimal.RequireFromString("0.01"), MinNotional: decimal.RequireFromString("5.0")},
		}
		input[0].ID = 42
		require.NoError(t, catalog.Replace("binance", input))

		assert.Equal(t, uint(42), input[0].ID)
		assert.Equal(t, "someone-elses-label", input[0].Exchange)

		// The stored rule still lands under the requested exchange.
		rule := catalog.Get("binance", "SOLUSDT")
		assert.Equal(t, 4, rule.BasePrecision)
	})

	t.Run("replace with an empty set clears the exchange", func(t *testing.T) {
		catalog := newTestCatalog(t)

		require.NoError(t, catalog.Replace("bybit", nil))
		rule := catalog.Get("bybit", "ETHUSDT")
		assert.True(t, rule.MinQty.Equal(defaultMinQty))
	})
}
