package wallet

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor expires deposit requests that were never completed. It runs as a
// background goroutine owned by main and stops when its context is canceled.
type Processor struct {
	svc          *Service
	processDelay time.Duration
	maxAgeHours  int
}

func NewProcessor(svc *Service) *Processor {
	return &Processor{
		svc:          svc,
		processDelay: 15 * time.Minute,
		maxAgeHours:  48,
	}
}

// Start begins the expiry loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "deposit_processor").Logger()
	logger.Info().Msg("starting deposit processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down deposit processor")
			return
		case <-ticker.C:
			if err := p.expireStaleRequests(); err != nil {
				logger.Error().Err(err).Msg("failed to expire stale deposit requests")
			}
		}
	}
}

func (p *Processor) expireStaleRequests() error {
	logger := log.With().Str("component", "deposit_processor").Logger()

	stale, err := p.svc.db.GetStaleDepositRequests(p.maxAgeHours)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	logger.Info().Int("stale_count", len(stale)).Msg("expiring stale deposit requests")
	for i := range stale {
		req := stale[i]
		req.Status = DepositStatusExpired
		if err := p.svc.db.UpdateDepositRequest(&req); err != nil {
			logger.Error().Err(err).
				Str("deposit_id", req.DepositID).
				Msg("failed to expire deposit request")
			continue
		}
	}
	return nil
}
