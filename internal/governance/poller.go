package governance

import (
	"context"
	"log/slog"
	"time"
)

// Poller drains due timers from the scheduler and hands them to the engine.
// One poller per process is enough; timers popped from the scheduler are
// consumed exactly once even with multiple pollers, since PopDue is atomic.
type Poller struct {
	engine    *Engine
	scheduler Scheduler
	interval  time.Duration
	batchSize int
	log       *slog.Logger
}

func NewPoller(engine *Engine, scheduler Scheduler, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		engine:    engine,
		scheduler: scheduler,
		interval:  time.Second,
		batchSize: 100,
		log:       log,
	}
}

// Run polls until ctx is cancelled. Fired timers are handled concurrently:
// a provider call hanging on one timer must not delay the others.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.tick(ctx, now.UTC())
		}
	}
}

func (p *Poller) tick(ctx context.Context, now time.Time) {
	due, err := p.scheduler.PopDue(ctx, now, p.batchSize)
	if err != nil {
		p.log.Error("governance timer poll failed", "err", err)
		return
	}
	for _, t := range due {
		t := t
		go p.engine.HandleTimer(ctx, t)
	}
}
