package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/support"
)

// Sweeper runs the periodic maintenance jobs: expiring supporter offers that
// sat unanswered past their deadline and pruning expired blacklist entries.
type Sweeper struct {
	cron   *cron.Cron
	sup    *support.Support
	logger *zap.Logger
}

// StartSweeper schedules the maintenance jobs and starts the cron loop.
func StartSweeper(sup *support.Support, logger *zap.Logger, interval time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(),
		sup:    sup,
		logger: logger,
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.sweepOffers); err != nil {
		return nil, fmt.Errorf("schedule offer sweep: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 10m", s.pruneBlacklist); err != nil {
		return nil, fmt.Errorf("schedule blacklist prune: %w", err)
	}
	s.cron.Start()
	return s, nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepOffers() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.sup.SweepOffers(ctx, time.Now())
}

func (s *Sweeper) pruneBlacklist() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.sup.PruneBlacklist(ctx, time.Now())
	s.logger.Debug("blacklist prune complete")
}
