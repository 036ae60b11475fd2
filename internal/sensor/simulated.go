// Package sensor holds the telemetry sources whose latest readings are
// overlaid on the video.
package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sensor.display/internal/timeutil"
)

// Simulated stands in for a sensor whose every reading costs a fixed amount
// of work. Readings are the integers 1, 2, 3, ...
type Simulated struct {
	delay time.Duration
	clock timeutil.Clock
	count atomic.Int64
}

// NewSimulated creates a simulated sensor. A nil clock uses the real clock.
func NewSimulated(delay time.Duration, clock timeutil.Clock) *Simulated {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulated{delay: delay, clock: clock}
}

// Read waits out the sensor's delay and returns the next counter value. It
// returns ctx.Err() without a reading if ctx is cancelled during the delay.
func (s *Simulated) Read(ctx context.Context) (any, error) {
	if !timeutil.Wait(s.clock, s.delay, ctx.Done()) {
		return nil, ctx.Err()
	}
	return s.count.Add(1), nil
}

// Delay returns the simulated work per reading.
func (s *Simulated) Delay() time.Duration { return s.delay }
