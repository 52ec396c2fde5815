// Package monitor drives the fixed-cadence tick loop: once per period,
// every registered program is given a chance to notice exited children and
// consult its restart policy.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrux/supervisor/internal/program"
	"github.com/kestrux/supervisor/internal/supervisor"
)

// DefaultInterval is the tick period: frequent enough to reap short-lived
// children promptly, coarse enough to keep CPU usage negligible at idle.
const DefaultInterval = 1 * time.Second

// Loop ticks every program registered on sup once per Interval until ctx
// is cancelled. A panic while ticking one program is recovered and logged
// so it cannot abort the loop for the rest of the fleet.
type Loop struct {
	sup      *supervisor.Supervisor
	log      *slog.Logger
	Interval time.Duration
}

// New constructs a Loop with DefaultInterval. Override Interval before
// calling Run for a different cadence (tests use a much shorter one).
func New(sup *supervisor.Supervisor, log *slog.Logger) *Loop {
	return &Loop{sup: sup, log: log, Interval: DefaultInterval}
}

// Run blocks, ticking until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tickAll(ctx, now)
		}
	}
}

func (l *Loop) tickAll(ctx context.Context, now time.Time) {
	l.sup.WithLock(func(programs map[string]*program.Program) {
		for name, p := range programs {
			l.tickOne(ctx, name, p, now)
		}
	})
}

func (l *Loop) tickOne(ctx context.Context, name string, p *program.Program, now time.Time) {
	defer func() {
		if r := recover(); r != nil && l.log != nil {
			l.log.Error("recovered from panic while ticking program",
				slog.String("program", name), slog.Any("panic", r))
		}
	}()
	p.Tick(ctx, now)
}
