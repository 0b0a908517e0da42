package scanner

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/types"
)

func newScanRegistry() *exchange.Registry {
	registry := exchange.NewRegistry()
	registry.Register(exchange.NewSimulated(exchange.SimulatedConfig{
		Name:          "binance",
		Deterministic: true,
	}, testSnapshot()))

	// Bybit quotes are skewed so its cycles rank differently.
	registry.Register(exchange.NewSimulated(exchange.SimulatedConfig{
		Name:          "bybit",
		Deterministic: true,
	}, types.TickerSnapshot{
		"BTCUSDT": quote("BTCUSDT", "30010", "30012"),
		"ETHBTC":  quote("ETHBTC", "0.0689", "0.06895"),
		"ETHUSDT": quote("ETHUSDT", "2077", "2077.5"),
	}))
	return registry
}

func TestServiceScan(t *testing.T) {
	ctx := context.Background()
	start := decimal.NewFromInt(100)

	t.Run("scans all registered exchanges by default", func(t *testing.T) {
		svc := NewService(newScanRegistry())

		result, err := svc.Scan(ctx, nil, "USDT", start)
		require.NoError(t, err)
		assert.Equal(t, []string{"binance", "bybit"}, result.Exchanges)
		// Two cycles per exchange for the three-pair snapshots.
		assert.Len(t, result.Opportunities, 4)

		seen := map[string]bool{}
		for _, opp := range result.Opportunities {
			seen[opp.Exchange] = true
		}
		assert.True(t, seen["binance"])
		assert.True(t, seen["bybit"])
	})

	t.Run("merged results are sorted by profit percent", func(t *testing.T) {
		svc := NewService(newScanRegistry())

		result, err := svc.Scan(ctx, nil, "USDT", start)
		require.NoError(t, err)
		for i := 1; i < len(result.Opportunities); i++ {
			assert.True(t, result.Opportunities[i-1].ProfitPercent.
				GreaterThanOrEqual(result.Opportunities[i].ProfitPercent))
		}
	})

	t.Run("scan can be restricted to one exchange", func(t *testing.T) {
		svc := NewService(newScanRegistry())

		result, err := svc.Scan(ctx, []string{"bybit"}, "USDT", start)
		require.NoError(t, err)
		for _, opp := range result.Opportunities {
			assert.Equal(t, "bybit", opp.Exchange)
		}
	})

	t.Run("unknown exchange fails the scan", func(t *testing.T) {
		svc := NewService(newScanRegistry())
		_, err := svc.Scan(ctx, []string{"kraken"}, "USDT", start)
		assert.Error(t, err)
	})

	t.Run("non-positive start amount is rejected", func(t *testing.T) {
		svc := NewService(newScanRegistry())
		_, err := svc.Scan(ctx, nil, "USDT", decimal.Zero)
		assert.Error(t, err)
	})
}
