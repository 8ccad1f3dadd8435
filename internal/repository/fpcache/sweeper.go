package fpcache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Sweeper periodically evicts expired entries from a Store.
type Sweeper struct {
	store    Store
	interval time.Duration
	swept    prometheus.Counter
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. swept may be nil.
func NewSweeper(s Store, interval time.Duration, swept prometheus.Counter, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    s,
		interval: interval,
		swept:    swept,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of removed entries.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n := s.store.Sweep(ctx)
	if n > 0 {
		if s.swept != nil {
			s.swept.Add(float64(n))
		}
		s.logger.Debug("Cache sweep", zap.Int("removed", n))
	}
	return n
}
