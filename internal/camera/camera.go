// Package camera provides the video source of the display pipeline: a
// device opened by index, configured once to a fixed resolution, and read
// one RGB frame at a time.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sensor.display/internal/monitoring"
)

// FrequencyHz is the rate at which the camera is polled.
const FrequencyHz = 30

var (
	// ErrCannotOpen is returned when the device cannot be opened or configured.
	ErrCannotOpen = errors.New("cannot open camera")
	// ErrReadFailed is returned when a single frame read fails.
	ErrReadFailed = errors.New("failed to read frame")
)

// Capturer opens capture devices by index.
type Capturer interface {
	Open(index int) (Device, error)
}

// Device is an opened capture device.
type Device interface {
	// Configure requests the capture resolution.
	Configure(width, height int) error
	// ReadFrame blocks for the next frame.
	ReadFrame() (*image.RGBA, error)
	// Release frees the device.
	Release() error
}

// Frame is one captured video frame.
type Frame struct {
	Seq      uint64
	Captured time.Time
	TraceID  string
	Image    *image.RGBA
}

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// DefaultResolution is 1280x720.
var DefaultResolution = Resolution{Width: 1280, Height: 720}

// ParseResolution parses "WIDTHxHEIGHT", e.g. "1280x720".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Source is an opened camera that yields Frames. It satisfies
// producer.Source[Frame].
type Source struct {
	index  int
	res    Resolution
	device Device
	log    monitoring.Source

	seq         atomic.Uint64
	releaseOnce sync.Once
	releaseErr  error
}

// Open opens camera index through c and configures it to res. On failure
// whatever was opened is released and the error wraps ErrCannotOpen.
func Open(c Capturer, index int, res Resolution) (*Source, error) {
	logger := monitoring.For("SensorCam")
	logger.Infof("Attempting to open camera with index %d", index)

	dev, err := c.Open(index)
	if err != nil {
		logger.Errorf("Cannot open camera with index %d: %v", index, err)
		return nil, fmt.Errorf("%w %d: %v", ErrCannotOpen, index, err)
	}
	if err := dev.Configure(res.Width, res.Height); err != nil {
		logger.Errorf("Cannot configure camera with index %d to %s: %v", index, res, err)
		if rerr := dev.Release(); rerr != nil {
			logger.Warnf("Release after failed configure: %v", rerr)
		}
		return nil, fmt.Errorf("%w %d: configure %s: %v", ErrCannotOpen, index, res, err)
	}

	logger.Infof("Camera opened successfully at %s", res)
	return &Source{index: index, res: res, device: dev, log: logger}, nil
}

// Read captures the next frame. ctx is only checked before the read; a device
// read in progress is not interruptible.
func (s *Source) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	img, err := s.device.ReadFrame()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if img == nil {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrReadFailed)
	}
	if b := img.Bounds(); b.Dx() != s.res.Width || b.Dy() != s.res.Height {
		return Frame{}, fmt.Errorf("%w: got %dx%d, want %s", ErrReadFailed, b.Dx(), b.Dy(), s.res)
	}
	return Frame{
		Seq:      s.seq.Add(1),
		Captured: time.Now(),
		TraceID:  uuid.NewString(),
		Image:    img,
	}, nil
}

// Resolution returns the configured capture size.
func (s *Source) Resolution() Resolution { return s.res }

// Index returns the device index.
func (s *Source) Index() int { return s.index }

// Close releases the device exactly once; later calls return the first result.
func (s *Source) Close() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.device.Release()
		if s.releaseErr != nil {
			s.log.Errorf("Camera release failed: %v", s.releaseErr)
			return
		}
		s.log.Infof("Camera released")
	})
	return s.releaseErr
}
