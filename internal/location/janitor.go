package location

import (
	"context"
	"time"

	"github.com/askwhyharsh/caddate/pkg/logger"
)

// Janitor periodically drops stale users from the store's proximity index.
type Janitor struct {
	store     Store
	freshness time.Duration
	interval  time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewJanitor(store Store, freshness, interval time.Duration, log logger.Logger) *Janitor {
	return &Janitor{
		store:     store,
		freshness: freshness,
		interval:  interval,
		logger:    log,
		now:       time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Location janitor started", "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error("Failed to prune stale locations", "error", err)
			}
		case <-ctx.Done():
			j.logger.Info("Location janitor stopped")
			return nil
		}
	}
}

// Sweep runs a single prune pass.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	pruned, err := j.store.Prune(ctx, j.now().Add(-j.freshness))
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		j.logger.Debug("Pruned stale locations", "count", pruned)
	}
	return pruned, nil
}
