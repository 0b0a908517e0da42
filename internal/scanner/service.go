package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/triarb/triarb-api/internal/exchange"
	"github.com/triarb/triarb-api/internal/types"
	"golang.org/x/sync/errgroup"
)

// Service runs the opportunity finder against live exchange snapshots.
// The finder itself is pure; the service owns snapshot acquisition and
// cross-exchange fan-out.
type Service struct {
	registry *exchange.Registry
}

func NewService(registry *exchange.Registry) *Service {
	return &Service{registry: registry}
}

// Scan fetches a ticker snapshot from each requested exchange, runs the
// finder per exchange concurrently, and merges the per-exchange rankings
// into one list sorted descending by profit percent. An exchange that cannot
// serve tickers fails the whole scan rather than silently returning a
// partial view.
func (s *Service) Scan(ctx context.Context, exchanges []string, baseCoin string, startAmount decimal.Decimal) (*types.ScanResponse, error) {
	if startAmount.Sign() <= 0 {
		return nil, fmt.Errorf("start amount must be positive")
	}
	if len(exchanges) == 0 {
		exchanges = s.registry.Names()
	}

	logger := log.With().
		Str("service", "scanner").
		Strs("exchanges", exchanges).
		Str("base_coin", baseCoin).
		Logger()

	var (
		mu         sync.Mutex
		byExchange = make(map[string][]types.Opportunity, len(exchanges))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range exchanges {
		name := name
		gw, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		source, ok := gw.(exchange.TickerSource)
		if !ok {
			return nil, fmt.Errorf("exchange %s cannot serve ticker snapshots", name)
		}

		g.Go(func() error {
			snapshot, err := source.GetTickers(gctx)
			if err != nil {
				return fmt.Errorf("failed to fetch tickers from %s: %w", name, err)
			}

			found := FindTriangular(snapshot, baseCoin, startAmount)
			for i := range found {
				found[i].Exchange = name
			}

			mu.Lock()
			byExchange[name] = found
			mu.Unlock()

			logger.Debug().
				Str("exchange", name).
				Int("symbols", len(snapshot)).
				Int("opportunities", len(found)).
				Msg("exchange scan complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []types.Opportunity
	for _, name := range exchanges {
		merged = append(merged, byExchange[name]...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ProfitPercent.GreaterThan(merged[j].ProfitPercent)
	})

	logger.Info().Int("opportunities", len(merged)).Msg("scan complete")

	return &types.ScanResponse{
		BaseCoin:      baseCoin,
		StartAmount:   startAmount,
		Exchanges:     exchanges,
		Opportunities: merged,
		ScannedAt:     time.Now(),
	}, nil
}
