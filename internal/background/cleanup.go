package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweep is one periodic best-effort cleanup task. It returns how many
// records it removed; failures are logged and retried on the next tick,
// never surfaced to request-serving paths.
type Sweep struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// SweepManager drives the retention sweeps (expired sessions, revoked-token
// pruning, tracker expiry, event-log retention) on independent timers.
type SweepManager struct {
	sweeps []Sweep
	logger *slog.Logger
	stopCh chan struct{}
}

// NewSweepManager creates a new sweep manager
func NewSweepManager(logger *slog.Logger, sweeps ...Sweep) *SweepManager {
	return &SweepManager{
		sweeps: sweeps,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches every sweep on its own ticker. Blocks until the context is
// cancelled or Stop is called.
func (sm *SweepManager) Start(ctx context.Context) {
	for _, sweep := range sm.sweeps {
		go sm.loop(ctx, sweep)
	}

	select {
	case <-sm.stopCh:
		sm.logger.Info("sweep manager stopped")
	case <-ctx.Done():
		sm.logger.Info("sweep manager context cancelled")
	}
}

func (sm *SweepManager) loop(ctx context.Context, sweep Sweep) {
	ticker := time.NewTicker(sweep.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	sm.run(ctx, sweep)

	for {
		select {
		case <-ticker.C:
			sm.run(ctx, sweep)
		case <-sm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (sm *SweepManager) run(ctx context.Context, sweep Sweep) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := sweep.Run(sweepCtx)
	if err != nil {
		sm.logger.Error("sweep failed",
			slog.String("sweep", sweep.Name),
			slog.Any("error", err))
		return
	}

	if removed > 0 {
		sm.logger.Info("sweep completed",
			slog.String("sweep", sweep.Name),
			slog.Int64("records_removed", removed))
	}
}

// Stop signals every sweep loop to stop
func (sm *SweepManager) Stop() {
	close(sm.stopCh)
}
