package reconcile

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultSweepInterval is how often the staleness sweep runs.
	DefaultSweepInterval = 2 * time.Second
	// DefaultWebhookStaleAfter is how long a webhook-sourced call may go
	// without a sighting before the sweep retires it.
	DefaultWebhookStaleAfter = 5 * time.Minute
)

// Sweeper periodically retires calls that are logically dead but not yet
// reaped: realtime records whose terminal push was merged but never acted on,
// and webhook records whose terminal notification never arrived at all.
type Sweeper struct {
	engine     *Engine
	interval   time.Duration
	staleAfter time.Duration
	clock      Clock
	log        *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the sweep period.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithWebhookStaleAfter sets the webhook staleness threshold.
func WithWebhookStaleAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.staleAfter = d }
}

// WithSweeperClock sets the time source.
func WithSweeperClock(c Clock) SweeperOption {
	return func(s *Sweeper) { s.clock = c }
}

// WithSweeperLogger sets the sweeper logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.log = l }
}

func NewSweeper(engine *Engine, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		engine:     engine,
		interval:   DefaultSweepInterval,
		staleAfter: DefaultWebhookStaleAfter,
		clock:      time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("staleness sweep started",
		"interval", s.interval.String(), "webhook_stale_after", s.staleAfter.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("staleness sweep stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass. Retiring an already-absent id is a no-op, so
// overlapping passes or races with explicit hangups stay silent.
func (s *Sweeper) Sweep() {
	s.engine.SweepStale(s.clock(), s.staleAfter)
}
