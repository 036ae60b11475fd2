package compositor

import (
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

// threadGroup runs named goroutines and joins them with a deadline. A
// goroutine that panics is logged and ends; the rest of the group is
// unaffected.
type threadGroup struct {
	log     monitoring.Source
	threads []*thread
}

type thread struct {
	name string
	done chan struct{}
}

func newThreadGroup(log monitoring.Source) *threadGroup {
	return &threadGroup{log: log}
}

// Go starts fn on its own goroutine.
func (g *threadGroup) Go(name string, fn func() error) {
	t := &thread{name: name, done: make(chan struct{})}
	g.threads = append(g.threads, t)

	go func() {
		defer close(t.done)
		var pc panics.Catcher
		pc.Try(func() {
			if err := fn(); err != nil {
				g.log.Errorf("Thread %s exited with error: %v", name, err)
			}
		})
		if r := pc.Recovered(); r != nil {
			g.log.Errorf("Thread %s panicked: %v", name, r.Value)
		}
	}()
}

// Join waits up to timeout for each goroutine in start order and returns
// the names of those that did not finish. Abandoned goroutines keep running
// until their blocking call returns.
func (g *threadGroup) Join(timeout time.Duration) []string {
	var abandoned []string
	for _, t := range g.threads {
		timer := time.NewTimer(timeout)
		select {
		case <-t.done:
			g.log.Debugf("Thread %s joined", t.name)
		case <-timer.C:
			g.log.Errorf("Thread %s did not stop within %v; abandoning it", t.name, timeout)
			abandoned = append(abandoned, t.name)
		}
		timer.Stop()
	}
	return abandoned
}

// Len returns the number of goroutines started.
func (g *threadGroup) Len() int { return len(g.threads) }
