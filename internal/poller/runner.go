// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run cycles until ctx is cancelled or monitoring stops.
// One goroutine per device. No overlap: the next cycle is scheduled
// after the previous one finished. Run must be called once.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	p.log.Info().Dur("interval", p.cfg.Interval).Msg("poller started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.exit()
			return
		case <-timer.C:
		}

		if p.stopping(ctx) {
			p.exit()
			return
		}

		p.PollOnce(ctx)

		p.setState(StateSleeping)
		timer.Reset(p.cfg.Interval)
	}
}

func (p *Poller) exit() {
	p.setState(StateStopping)
	p.log.Info().Uint64("cycles", p.cycle).Msg("poller stopped")
	p.setState(StateIdle)
}
