// Package compositor runs the display pipeline: it starts one producer per
// source, overlays the newest sensor readings on each camera frame, shows the
// result and shuts everything down in order.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/banshee-data/sensor.display/internal/camera"
	"github.com/banshee-data/sensor.display/internal/display"
	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/overlay"
	"github.com/banshee-data/sensor.display/internal/producer"
	"github.com/banshee-data/sensor.display/internal/timeutil"
)

var (
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("compositor already started")
	// ErrCameraStopped is returned when the camera producer exits while the
	// pipeline is still running.
	ErrCameraStopped = errors.New("camera producer stopped unexpectedly")
)

// DefaultJoinTimeout is how long shutdown waits for each producer goroutine.
const DefaultJoinTimeout = 2 * time.Second

// CameraName is the producer name of the video source.
const CameraName = "SensorCam"

// State is the compositor lifecycle stage.
type State int32

const (
	Starting State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SensorSpec describes one telemetry producer.
type SensorSpec struct {
	Name        string
	FrequencyHz float64
	Source      producer.Source[any]
}

// Config contains configuration for a Compositor.
type Config struct {
	// Capturer opens the camera; CameraIndex and Resolution select it.
	Capturer            camera.Capturer
	CameraIndex         int
	Resolution          camera.Resolution
	CameraQueueCapacity int

	Sensors             []SensorSpec
	SensorQueueCapacity int

	// Window is where frames are shown; DisplayFrequencyHz sets the key
	// poll period, which also bounds the wait for a camera frame.
	Window             display.Window
	DisplayFrequencyHz int
	WindowTitle        string

	// Overlay draws the text; Layout is optional (zero uses
	// overlay.DefaultLayout).
	Overlay overlay.TextDrawer
	Layout  overlay.Layout

	// JoinTimeout is optional; if zero, uses DefaultJoinTimeout.
	JoinTimeout time.Duration
	// Clock is optional; if nil, uses timeutil.RealClock.
	Clock timeutil.Clock
	// OnReading is optional and passed to every producer.
	OnReading func(name string, at time.Time)
}

// Compositor owns every producer, the display sink and the overlay state.
// Only the compositor stops other components.
type Compositor struct {
	cfg     Config
	sensors []*producer.Producer[any]
	sink    *display.Sink
	overlay *overlay.State
	log     monitoring.Source

	state    atomic.Int32
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	cycles   atomic.Uint64

	mu        sync.Mutex
	camera    *producer.Producer[camera.Frame]
	abandoned []string
}

// New validates cfg and builds the sensor producers and display sink.
// Nothing runs and no device is opened until Run.
func New(cfg Config) (*Compositor, error) {
	if cfg.Capturer == nil {
		return nil, fmt.Errorf("camera capturer is required")
	}
	if cfg.Window == nil {
		return nil, fmt.Errorf("display window is required")
	}
	if cfg.Overlay == nil {
		return nil, fmt.Errorf("overlay text drawer is required")
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Layout == (overlay.Layout{}) {
		cfg.Layout = overlay.DefaultLayout()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	sink, err := display.NewSink(cfg.Window, cfg.WindowTitle, cfg.DisplayFrequencyHz)
	if err != nil {
		return nil, err
	}

	c := &Compositor{
		cfg:     cfg,
		sink:    sink,
		overlay: overlay.NewState(cfg.Overlay, cfg.Layout),
		log:     monitoring.For("Compositor"),
		stopCh:  make(chan struct{}),
	}
	c.state.Store(int32(Starting))

	for _, spec := range cfg.Sensors {
		p, err := producer.New[any](producer.Config{
			Name:          spec.Name,
			FrequencyHz:   spec.FrequencyHz,
			QueueCapacity: cfg.SensorQueueCapacity,
			Clock:         cfg.Clock,
			OnReading:     cfg.OnReading,
		}, spec.Source)
		if err != nil {
			sink.Close()
			return nil, err
		}
		c.sensors = append(c.sensors, p)
	}
	return c, nil
}

// Run opens the camera, starts every producer and composites frames until
// the quit key, Stop, ctx cancellation, or a failure in the loop. It then
// stops and joins the producers and releases the sink and camera. The error
// is the camera open failure or the loop failure; a user stop returns nil.
func (c *Compositor) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer c.setState(Stopped)
	defer c.sink.Close()

	c.log.Infof("Starting with camera %d at %s", c.cfg.CameraIndex, c.cfg.Resolution)
	cam, err := camera.Open(c.cfg.Capturer, c.cfg.CameraIndex, c.cfg.Resolution)
	if err != nil {
		return err
	}
	defer cam.Close()

	camProducer, err := producer.New[camera.Frame](producer.Config{
		Name:          CameraName,
		FrequencyHz:   camera.FrequencyHz,
		QueueCapacity: c.cfg.CameraQueueCapacity,
		Clock:         c.cfg.Clock,
		OnReading:     c.cfg.OnReading,
	}, cam)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.camera = camProducer
	c.mu.Unlock()

	threads := newThreadGroup(c.log)
	for _, p := range c.sensors {
		threads.Go(p.Name(), p.Run)
	}
	threads.Go(camProducer.Name(), camProducer.Run)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	c.setState(Running)
	c.log.Infof("Running with %d sensors", len(c.sensors))
	loopErr := c.loop(loopCtx, camProducer.Queue())

	c.setState(Stopping)
	c.log.Infof("Stopping")
	for _, p := range c.sensors {
		p.Stop()
	}
	camProducer.Stop()

	abandoned := threads.Join(c.cfg.JoinTimeout)
	c.mu.Lock()
	c.abandoned = abandoned
	c.mu.Unlock()

	camProducer.Queue().Close()
	for _, p := range c.sensors {
		p.Queue().Close()
	}

	c.log.Infof("Stopped after %d frames (%d threads joined, %d abandoned)",
		c.cycles.Load(), threads.Len()-len(abandoned), len(abandoned))
	return loopErr
}

func (c *Compositor) loop(ctx context.Context, frames *producer.Queue[camera.Frame]) error {
	for !c.sink.Stopped() {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		var pc panics.Catcher
		pc.Try(func() { err = c.cycle(ctx, frames) })
		if r := pc.Recovered(); r != nil {
			c.log.Errorf("Compositor loop panicked: %v", r.Value)
			return r.AsError()
		}

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, producer.ErrQueueClosed):
			c.log.Errorf("Camera stream ended while running")
			return ErrCameraStopped
		default:
			c.log.Errorf("Compositor loop failed: %v", err)
			return err
		}
	}
	return nil
}

// cycle composites and shows one frame. When no frame arrives within one
// display period it only polls the window, so the quit key is still seen
// while the camera delivers nothing.
func (c *Compositor) cycle(ctx context.Context, frames *producer.Queue[camera.Frame]) error {
	popCtx, cancel := context.WithTimeout(ctx, max(c.sink.PollTimeout(), time.Millisecond))
	frame, err := frames.Pop(popCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			c.sink.Poll()
			return nil
		}
		return err
	}

	slots := make([]overlay.Slot, len(c.sensors))
	for i, p := range c.sensors {
		v, ok := p.Queue().TakeNewest()
		slots[i] = overlay.Slot{Name: p.Name(), Value: v, OK: ok}
	}
	c.overlay.Compose(frame.Image, slots)

	if monitoring.Enabled(monitoring.LevelDebug) {
		c.log.Debugf("Frame %d [%s]: %s", frame.Seq, frame.TraceID, strings.Join(c.overlay.Lines(), "; "))
	}

	c.cycles.Add(1)
	return c.sink.Show(frame.Image)
}

// Stop asks Run to shut down. It is idempotent and safe from any goroutine.
func (c *Compositor) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Compositor) setState(s State) {
	c.state.Store(int32(s))
}

// State returns the current lifecycle stage.
func (c *Compositor) State() State {
	return State(c.state.Load())
}

// Cycles returns the number of frames composited.
func (c *Compositor) Cycles() uint64 { return c.cycles.Load() }

// Lines returns the overlay text of the last frame.
func (c *Compositor) Lines() []string { return c.overlay.Lines() }

// Abandoned returns the producers that did not stop within the join timeout.
func (c *Compositor) Abandoned() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.abandoned...)
}

// Stats returns the counters of every producer, sensors first, then the
// camera once it has been opened.
func (c *Compositor) Stats() []producer.Stats {
	out := make([]producer.Stats, 0, len(c.sensors)+1)
	for _, p := range c.sensors {
		out = append(out, p.Stats())
	}
	c.mu.Lock()
	cam := c.camera
	c.mu.Unlock()
	if cam != nil {
		out = append(out, cam.Stats())
	}
	return out
}
