package producer

import (
	"time"

	"github.com/banshee-data/sensor.display/internal/timeutil"
)

// pacer schedules loop iterations on a fixed grid of deadlines
// start + k*period. Work done inside an iteration counts toward its period.
type pacer struct {
	clock  timeutil.Clock
	period time.Duration
	next   time.Time
}

func newPacer(clock timeutil.Clock, period time.Duration, start time.Time) *pacer {
	return &pacer{clock: clock, period: period, next: start.Add(period)}
}

// delay returns how long to wait at now for the next deadline and moves the
// schedule on by one period. A loop more than a full period late is
// re-anchored to now rather than allowed to burst.
func (p *pacer) delay(now time.Time) time.Duration {
	d := p.next.Sub(now)
	if d < -p.period {
		p.next = now.Add(p.period)
		return 0
	}
	p.next = p.next.Add(p.period)
	if d < 0 {
		return 0
	}
	return d
}

// wait blocks until the next deadline. It returns false if stop closes first.
func (p *pacer) wait(stop <-chan struct{}) bool {
	return timeutil.Wait(p.clock, p.delay(p.clock.Now()), stop)
}
