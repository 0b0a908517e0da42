package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triarb/triarb-api/internal/database"
	"github.com/triarb/triarb-api/internal/events"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/rules"
	"github.com/triarb/triarb-api/internal/types"
	"github.com/triarb/triarb-api/internal/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeGateway scripts order-book and order responses per pair so tests can
// fail an exact leg.
type fakeGateway struct {
	name        string
	books       map[string]*exchange.OrderBook
	bookErrs    map[string]error
	orderErrs   map[string]error
	orderStatus map[string]string
	fillPrices  map[string]decimal.Decimal
	orderCalls  []string
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) GetOrderBookDepth(_ context.Context, pair string, _ int) (*exchange.OrderBook, error) {
	if err := f.bookErrs[pair]; err != nil {
		return nil, err
	}
	if book, ok := f.books[pair]; ok {
		return book, nil
	}
	// A very deep book that passes any depth check.
	return &exchange.OrderBook{
		Bids: []exchange.PriceLevel{{Price: f.fillPrices[pair], Qty: decimal.NewFromInt(1000000)}},
		Asks: []exchange.PriceLevel{{Price: f.fillPrices[pair], Qty: decimal.NewFromInt(1000000)}},
	}, nil
}

func (f *fakeGateway) CreateMarketOrder(_ context.Context, pair, side string, quantity decimal.Decimal) (*exchange.OrderResult, error) {
	f.orderCalls = append(f.orderCalls, pair)
	if err := f.orderErrs[pair]; err != nil {
		return nil, err
	}
	status := exchange.OrderStatusFilled
	if s, ok := f.orderStatus[pair]; ok {
		status = s
	}
	return &exchange.OrderResult{
		OrderID:          "ORD_" + pair,
		Status:           status,
		ExecutedQuantity: quantity,
		ExecutedPriceAvg: f.fillPrices[pair],
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// testOpportunity is the USDT -> ETH -> BTC -> USDT cycle used throughout.
func testOpportunity() types.Opportunity {
	d := decimal.RequireFromString
	return types.Opportunity{
		Exchange:      "binance",
		Path:          []string{"ETHUSDT", "ETHBTC", "BTCUSDT"},
		Coins:         []string{"USDT", "ETH", "BTC"},
		AssetSequence: []string{"USDT", "ETH", "BTC", "USDT"},
		Rates:         []decimal.Decimal{d("2071"), d("0.069"), d("30000")},
		Actions:       []string{types.SideBuy, types.SideSell, types.SideSell},
		StartAmount:   d("100"),
		FinalAmount:   d("99.95"),
		Profit:        d("-0.05"),
		ProfitPercent: d("-0.05"),
	}
}

func newTestEngine(t *testing.T, gw *fakeGateway) (*Engine, *wallet.Service, *gorm.DB) {
	return newTestEngineWithBus(t, gw, nil)
}

func newTestEngineWithBus(t *testing.T, gw *fakeGateway, bus *events.Bus) (*Engine, *wallet.Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	catalog, err := rules.NewCatalog(db)
	require.NoError(t, err)

	registry := exchange.NewRegistry()
	registry.Register(gw)

	walletSvc := wallet.NewService(db, bus)
	eng := NewEngine(db, catalog, registry, walletSvc, bus, Config{})
	return eng, walletSvc, db
}

func fillPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"ETHUSDT": decimal.RequireFromString("2071"),
		"ETHBTC":  decimal.RequireFromString("0.069"),
		"BTCUSDT": decimal.RequireFromString("30000"),
	}
}

func TestEngineExecute(t *testing.T) {
	ctx := context.Background()
	start := decimal.NewFromInt(100)

	t.Run("completes all three legs and carries amounts forward", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_happy"))

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_happy")
		require.NoError(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, types.AttemptStatusCompleted, attempt.Status)
		require.Len(t, attempt.Legs, 3)

		// Leg 1 buys ETH with 100 USDT at 2071, rounded down to 8 decimals.
		qty1 := start.Div(decimal.RequireFromString("2071")).RoundDown(8)
		leg1 := attempt.Legs[0]
		assert.Equal(t, types.LegStatusFilled, leg1.Status)
		assert.True(t, leg1.ExecutedQuantity.Equal(qty1), "got %s", leg1.ExecutedQuantity)

		// Leg 2 sells that ETH for BTC at 0.069.
		leg2 := attempt.Legs[1]
		assert.Equal(t, types.LegStatusFilled, leg2.Status)
		assert.True(t, leg2.ExecutedQuantity.Equal(qty1))
		held2 := qty1.Mul(decimal.RequireFromString("0.069"))

		// Leg 3 sells the BTC for USDT at 30000.
		qty3 := held2.RoundDown(8)
		leg3 := attempt.Legs[2]
		assert.Equal(t, types.LegStatusFilled, leg3.Status)
		assert.True(t, leg3.ExecutedQuantity.Equal(qty3))

		final := qty3.Mul(decimal.RequireFromString("30000"))
		assert.True(t, attempt.FinalAmount.Equal(final))
		assert.True(t, attempt.ActualProfit.Equal(final.Sub(start)))
		assert.Equal(t, []string{"ETHUSDT", "ETHBTC", "BTCUSDT"}, gw.orderCalls)
	})

	t.Run("every leg event names the owning client", func(t *testing.T) {
		bus := events.NewBus()
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, walletSvc, _ := newTestEngineWithBus(t, gw, bus)
		require.NoError(t, walletSvc.Provision("CLI_evt"))

		ch, cancelSub := bus.Subscribe(256)
		_, err := eng.Execute(ctx, testOpportunity(), start, "CLI_evt")
		require.NoError(t, err)
		cancelSub()

		// Pending, sized, new and filled updates for each of the three legs.
		var legEvents int
		for evt := range ch {
			assert.Equal(t, "CLI_evt", evt.ClientID, "event type %s", evt.Type)
			if evt.Type == events.TypeLegUpdated {
				legEvents++
			}
		}
		assert.Equal(t, 12, legEvents)
	})

	t.Run("failed leg events still name the owning client", func(t *testing.T) {
		bus := events.NewBus()
		gw := &fakeGateway{
			name:       "binance",
			fillPrices: fillPrices(),
			orderErrs:  map[string]error{"ETHBTC": &exchange.TransportError{Op: "create_order", Err: errors.New("dial timeout")}},
		}
		eng, walletSvc, _ := newTestEngineWithBus(t, gw, bus)
		require.NoError(t, walletSvc.Provision("CLI_evt_fail"))

		ch, cancelSub := bus.Subscribe(256)
		_, err := eng.Execute(ctx, testOpportunity(), start, "CLI_evt_fail")
		require.Error(t, err)
		cancelSub()

		for evt := range ch {
			assert.Equal(t, "CLI_evt_fail", evt.ClientID, "event type %s", evt.Type)
		}
	})

	t.Run("malformed opportunity creates no attempt", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, _, _ := newTestEngine(t, gw)

		opp := testOpportunity()
		opp.Path[1] = opp.Path[0]
		attempt, err := eng.Execute(ctx, opp, start, "CLI_x")
		assert.Nil(t, attempt)
		assert.ErrorIs(t, err, types.ErrMalformedOpportunity)
		assert.Empty(t, gw.orderCalls)
	})

	t.Run("unknown exchange creates no attempt", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, _, _ := newTestEngine(t, gw)

		opp := testOpportunity()
		opp.Exchange = "kraken"
		attempt, err := eng.Execute(ctx, opp, start, "CLI_x")
		assert.Nil(t, attempt)
		assert.Error(t, err)
	})

	t.Run("missing wallet fails the attempt before any order", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, _, _ := newTestEngine(t, gw)

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_nowallet")
		require.Error(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, types.AttemptStatusFailed, attempt.Status)
		assert.Empty(t, gw.orderCalls)
	})

	t.Run("leg 2 gateway failure leaves leg 1 filled and cancels leg 3", func(t *testing.T) {
		gw := &fakeGateway{
			name:       "binance",
			fillPrices: fillPrices(),
			orderErrs:  map[string]error{"ETHBTC": &exchange.TransportError{Op: "create order", Err: errors.New("connection reset")}},
		}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_leg2"))

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_leg2")
		require.Error(t, err)
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, 2, gwErr.Leg)

		require.NotNil(t, attempt)
		assert.Equal(t, types.AttemptStatusFailed, attempt.Status)
		require.Len(t, attempt.Legs, 3)
		assert.Equal(t, types.LegStatusFilled, attempt.Legs[0].Status)
		assert.Equal(t, types.LegStatusError, attempt.Legs[1].Status)
		assert.Equal(t, types.LegStatusCanceled, attempt.Legs[2].Status)
		assert.Equal(t, []string{"ETHUSDT", "ETHBTC"}, gw.orderCalls)
	})

	t.Run("rejected order fails the leg", func(t *testing.T) {
		gw := &fakeGateway{
			name:        "binance",
			fillPrices:  fillPrices(),
			orderStatus: map[string]string{"ETHUSDT": exchange.OrderStatusRejected},
		}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_rej"))

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_rej")
		require.Error(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, types.AttemptStatusFailed, attempt.Status)
		assert.Equal(t, types.LegStatusError, attempt.Legs[0].Status)
		assert.Equal(t, types.LegStatusCanceled, attempt.Legs[1].Status)
		assert.Equal(t, types.LegStatusCanceled, attempt.Legs[2].Status)
	})

	t.Run("validation failure places no orders", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_tiny"))

		// One cent cannot satisfy the 10 USDT minimum notional on ETHUSDT.
		attempt, err := eng.Execute(ctx, testOpportunity(), decimal.RequireFromString("0.01"), "CLI_tiny")
		require.Error(t, err)
		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, 1, valErr.Leg)

		require.NotNil(t, attempt)
		assert.Equal(t, types.AttemptStatusFailed, attempt.Status)
		assert.Empty(t, gw.orderCalls)
		for _, leg := range attempt.Legs {
			assert.Equal(t, types.LegStatusCanceled, leg.Status)
		}
	})

	t.Run("insufficient depth fails before placing the order", func(t *testing.T) {
		gw := &fakeGateway{
			name:       "binance",
			fillPrices: fillPrices(),
			books: map[string]*exchange.OrderBook{
				"ETHUSDT": {
					Asks: []exchange.PriceLevel{{Price: decimal.RequireFromString("2071"), Qty: decimal.RequireFromString("0.001")}},
					Bids: []exchange.PriceLevel{{Price: decimal.RequireFromString("2070"), Qty: decimal.RequireFromString("0.001")}},
				},
			},
		}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_depth"))

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_depth")
		require.Error(t, err)
		var depthErr *DepthError
		require.ErrorAs(t, err, &depthErr)
		assert.Equal(t, 1, depthErr.Leg)

		require.NotNil(t, attempt)
		assert.Empty(t, gw.orderCalls)
		assert.Equal(t, types.LegStatusError, attempt.Legs[0].Status)
	})

	t.Run("commission is deducted from a profitable trade", func(t *testing.T) {
		prices := fillPrices()
		prices["BTCUSDT"] = decimal.RequireFromString("31000")
		gw := &fakeGateway{name: "binance", fillPrices: prices}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_profit"))
		_, err := walletSvc.AddCredit("CLI_profit", decimal.NewFromInt(1000), "test deposit")
		require.NoError(t, err)

		opp := testOpportunity()
		opp.Rates[2] = decimal.RequireFromString("31000")
		attempt, err := eng.Execute(ctx, opp, start, "CLI_profit")
		require.NoError(t, err)
		assert.Equal(t, types.AttemptStatusCompleted, attempt.Status)
		require.True(t, attempt.ActualProfit.Sign() > 0)

		expected := attempt.ActualProfit.Mul(decimal.RequireFromString("0.10")).RoundDown(8)
		assert.True(t, attempt.CommissionDeducted.Equal(expected),
			"commission %s, expected %s", attempt.CommissionDeducted, expected)

		w, err := walletSvc.GetWallet("CLI_profit")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(1000).Sub(expected)))
	})

	t.Run("insufficient balance for commission does not revert the trade", func(t *testing.T) {
		prices := fillPrices()
		prices["BTCUSDT"] = decimal.RequireFromString("31000")
		gw := &fakeGateway{name: "binance", fillPrices: prices}
		eng, walletSvc, db := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_broke"))

		opp := testOpportunity()
		opp.Rates[2] = decimal.RequireFromString("31000")
		attempt, err := eng.Execute(ctx, opp, start, "CLI_broke")
		require.NoError(t, err)
		assert.Equal(t, types.AttemptStatusCompleted, attempt.Status)
		assert.True(t, attempt.CommissionDeducted.IsZero())

		var stored types.TradeAttempt
		require.NoError(t, db.Where("attempt_id = ?", attempt.AttemptID).First(&stored).Error)
		assert.True(t, strings.Contains(stored.AdminNotes, "Insufficient balance"), "notes: %q", stored.AdminNotes)

		w, err := walletSvc.GetWallet("CLI_broke")
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero())
	})

	t.Run("losing trade deducts no commission", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_loss"))
		_, err := walletSvc.AddCredit("CLI_loss", decimal.NewFromInt(500), "test deposit")
		require.NoError(t, err)

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_loss")
		require.NoError(t, err)
		require.True(t, attempt.ActualProfit.Sign() < 0)
		assert.True(t, attempt.CommissionDeducted.IsZero())

		w, err := walletSvc.GetWallet("CLI_loss")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
	})

	t.Run("attempt lookup is scoped to the owning client", func(t *testing.T) {
		gw := &fakeGateway{name: "binance", fillPrices: fillPrices()}
		eng, walletSvc, _ := newTestEngine(t, gw)
		require.NoError(t, walletSvc.Provision("CLI_owner"))

		attempt, err := eng.Execute(ctx, testOpportunity(), start, "CLI_owner")
		require.NoError(t, err)

		mine, err := eng.GetAttempt(attempt.AttemptID, "CLI_owner")
		require.NoError(t, err)
		require.NotNil(t, mine)
		assert.Len(t, mine.Legs, 3)

		theirs, err := eng.GetAttempt(attempt.AttemptID, "CLI_other")
		require.NoError(t, err)
		assert.Nil(t, theirs)
	})
}
