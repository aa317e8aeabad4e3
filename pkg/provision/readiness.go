// pkg/provision/readiness.go
package provision

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lakelog/pkg/store"
)

// Gate polls the store until tables are confirmed accessible. A table is
// ready the first time a probe returns without an I/O failure; existence is
// not required, since a clean read of zero rows proves the backend is
// reachable. The gate is reentrant and safe to call standalone.
type Gate struct {
	store    store.TableStore
	logger   *zap.Logger
	interval time.Duration
	sleep    func(time.Duration)
}

// NewGate creates a readiness gate with a fixed polling interval
func NewGate(st store.TableStore, logger *zap.Logger, interval time.Duration) *Gate {
	return &Gate{
		store:    st,
		logger:   logger.Named("readiness"),
		interval: interval,
		sleep:    time.Sleep,
	}
}

// WithSleep overrides the sleep function, used by tests
func (g *Gate) WithSleep(sleep func(time.Duration)) *Gate {
	g.sleep = sleep
	return g
}

// WaitReady polls every table up to maxRetries times with a fixed interval
// between attempts. Returns true iff every table became ready within its
// retry budget. Never returns an error: exhaustion is reported as false.
func (g *Gate) WaitReady(ctx context.Context, locs []store.Location, maxRetries int) bool {
	allReady := true

	for _, loc := range locs {
		if !g.waitOne(ctx, loc, maxRetries) {
			allReady = false
		}
	}

	if allReady {
		g.logger.Info("All tables verified and accessible")
	} else {
		g.logger.Warn("Some tables not ready within retry budget")
	}

	return allReady
}

func (g *Gate) waitOne(ctx context.Context, loc store.Location, maxRetries int) bool {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		probe, err := g.store.Probe(ctx, loc)
		if err == nil {
			g.logger.Info("Table ready",
				zap.String("table", loc.Qualified()),
				zap.Bool("exists", probe.Exists),
				zap.Int64("rows", probe.RowCount),
				zap.Int("attempt", attempt))
			return true
		}

		if attempt < maxRetries {
			g.logger.Debug("Table not ready, waiting",
				zap.String("table", loc.Qualified()),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Error(err))
			g.sleep(g.interval)
		} else {
			g.logger.Warn("Table not accessible after retries",
				zap.String("table", loc.Qualified()),
				zap.Int("max_retries", maxRetries),
				zap.Error(err))
		}
	}

	return false
}
