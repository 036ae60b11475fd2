// Package producer runs one data source on its own goroutine at a fixed
// frequency and hands every reading to a queue for a single consumer.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/timeutil"
)

// ErrAlreadyRunning is returned when Run is called on a producer whose loop
// has already started.
var ErrAlreadyRunning = errors.New("producer already running")

// readErrorInterval throttles repeated read failure logs per producer.
const readErrorInterval = 5 * time.Second

// Source yields one reading per call. Read should return promptly once ctx is
// cancelled.
type Source[T any] interface {
	Read(ctx context.Context) (T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

func (f SourceFunc[T]) Read(ctx context.Context) (T, error) { return f(ctx) }

// Config contains configuration for a Producer.
type Config struct {
	// Name identifies the producer in logs and overlays.
	Name string
	// FrequencyHz is the target reading rate; must be positive.
	FrequencyHz float64
	// QueueCapacity bounds the output queue (0 = unbounded).
	QueueCapacity int
	// Clock is optional; if nil, uses timeutil.RealClock.
	Clock timeutil.Clock
	// OnReading is optional and called after every successful push.
	OnReading func(name string, at time.Time)
}

// Producer reads from a Source once per period and pushes each reading to its
// queue. Only the producer's own goroutine writes to the queue.
type Producer[T any] struct {
	name      string
	freq      float64
	period    time.Duration
	src       Source[T]
	out       *Queue[T]
	clock     timeutil.Clock
	onReading func(string, time.Time)
	log       monitoring.Source

	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	produced   atomic.Uint64
	readErrors atomic.Uint64
	lastRead   atomic.Int64 // unix nanos, 0 before the first reading
	errLog     rate.Sometimes
}

// New creates a producer for src. The loop does not start until Run.
func New[T any](cfg Config, src Source[T]) (*Producer[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("producer name is required")
	}
	if cfg.FrequencyHz <= 0 {
		return nil, fmt.Errorf("producer %s: frequency must be positive, got %v", cfg.Name, cfg.FrequencyHz)
	}
	if src == nil {
		return nil, fmt.Errorf("producer %s: source is required", cfg.Name)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Producer[T]{
		name:      cfg.Name,
		freq:      cfg.FrequencyHz,
		period:    time.Duration(float64(time.Second) / cfg.FrequencyHz),
		src:       src,
		out:       NewQueue[T](cfg.QueueCapacity),
		clock:     clock,
		onReading: cfg.OnReading,
		log:       monitoring.For(cfg.Name),
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		errLog:    rate.Sometimes{First: 1, Interval: readErrorInterval},
	}, nil
}

// Run executes the read/push/wait loop until Stop is called. It blocks, so
// callers run it on its own goroutine. A producer runs at most once. The
// output queue is closed when Run returns, including by panic, so a consumer
// blocked in Pop is released.
func (p *Producer[T]) Run() error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.out.Close()
	p.log.Infof("Producer started at %.2f Hz", p.freq)

	pace := newPacer(p.clock, p.period, p.clock.Now())
	for !p.stopped.Load() {
		v, err := p.src.Read(p.ctx)
		if err != nil {
			if p.stopped.Load() {
				break
			}
			n := p.readErrors.Add(1)
			p.errLog.Do(func() {
				p.log.Warnf("Read failed (%d so far): %v", n, err)
			})
		} else {
			if err := p.out.Push(v); err != nil {
				break
			}
			now := p.clock.Now()
			p.produced.Add(1)
			p.lastRead.Store(now.UnixNano())
			if p.onReading != nil {
				p.onReading(p.name, now)
			}
		}

		if !pace.wait(p.stopCh) {
			break
		}
	}

	p.log.Infof("Producer stopped after %d readings", p.produced.Load())
	return nil
}

// Stop asks the loop to end at its next check point and cancels any Read in
// progress. It is idempotent, non-blocking and safe from any goroutine.
func (p *Producer[T]) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stopCh)
		p.cancel()
	})
}

// Stopped reports whether Stop has been called.
func (p *Producer[T]) Stopped() bool { return p.stopped.Load() }

// Name returns the producer name.
func (p *Producer[T]) Name() string { return p.name }

// FrequencyHz returns the target frequency.
func (p *Producer[T]) FrequencyHz() float64 { return p.freq }

// Period returns the pacing period, 1/FrequencyHz.
func (p *Producer[T]) Period() time.Duration { return p.period }

// Queue returns the output queue. The caller is its only consumer.
func (p *Producer[T]) Queue() *Queue[T] { return p.out }
