// Package display shows composited frames to the user and reports the quit
// key back to the pipeline.
package display

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

// QuitKey ends the pipeline when pressed in the window.
const QuitKey = 'q'

// Window is a display surface.
type Window interface {
	// Render shows img under title.
	Render(title string, img *image.RGBA) error
	// PollKey waits up to timeout for a key press.
	PollKey(timeout time.Duration) (rune, bool)
	// Destroy closes the window.
	Destroy() error
}

// Sink renders frames into a Window and watches for the quit key. Each Show
// blocks for up to one display period while polling keys, which throttles the
// compositor loop.
type Sink struct {
	window      Window
	title       string
	pollTimeout time.Duration
	log         monitoring.Source

	shown     atomic.Uint64
	stopped   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSink creates a sink that polls keys for 1000/frequencyHz milliseconds
// after each frame.
func NewSink(w Window, title string, frequencyHz int) (*Sink, error) {
	if w == nil {
		return nil, fmt.Errorf("display window is required")
	}
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("display frequency must be positive, got %d", frequencyHz)
	}
	return &Sink{
		window:      w,
		title:       title,
		pollTimeout: time.Duration(1000/frequencyHz) * time.Millisecond,
		log:         monitoring.For("WindowImage"),
	}, nil
}

// Show renders img and polls for the quit key.
func (s *Sink) Show(img *image.RGBA) error {
	if err := s.window.Render(s.title, img); err != nil {
		return fmt.Errorf("render frame: %w", err)
	}
	s.shown.Add(1)
	s.Poll()
	return nil
}

// Poll waits up to one display period for the quit key without rendering.
// It keeps the window responsive while no frame is available.
func (s *Sink) Poll() {
	if key, ok := s.window.PollKey(s.pollTimeout); ok && key == QuitKey {
		s.log.Infof("Quit key pressed")
		s.Stop()
	}
}

// Stop marks the sink stopped. It is idempotent.
func (s *Sink) Stop() { s.stopped.Store(true) }

// Stopped reports whether the quit key was pressed or Stop was called.
func (s *Sink) Stopped() bool { return s.stopped.Load() }

// Shown returns the number of frames rendered.
func (s *Sink) Shown() uint64 { return s.shown.Load() }

// PollTimeout returns how long Show waits for a key.
func (s *Sink) PollTimeout() time.Duration { return s.pollTimeout }

// Close destroys the window exactly once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.window.Destroy()
		if s.closeErr != nil {
			s.log.Errorf("Window destroy failed: %v", s.closeErr)
			return
		}
		s.log.Infof("Window destroyed")
	})
	return s.closeErr
}
