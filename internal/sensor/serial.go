package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/serialmux"
)

// ErrSensorClosed is returned by Read once the sensor's line stream has ended.
var ErrSensorClosed = errors.New("sensor closed")

// MuxOpener opens the device behind a Serial sensor.
type MuxOpener func() (serialmux.SerialMuxInterface, error)

// Serial reads telemetry lines from a serial device. Each Read returns the
// value of the newest line received since the previous Read.
//
// The device is opened, monitored and sent its init commands on the first
// Read, so nothing touches the hardware until the pipeline is running. A
// failed connect is retried on the next Read.
type Serial struct {
	name         string
	open         MuxOpener
	initCommands []string
	log          monitoring.Source

	mu        sync.Mutex
	mux       serialmux.SerialMuxInterface
	lines     chan string
	cancel    context.CancelFunc
	closed    bool
	monitorWg sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewSerial creates a sensor that connects through open on its first Read.
// The sensor owns the opened device and closes it in Close.
func NewSerial(name string, open MuxOpener, initCommands []string) *Serial {
	return &Serial{
		name:         name,
		open:         open,
		initCommands: append([]string(nil), initCommands...),
		log:          monitoring.For(name),
	}
}

// connect opens the device once and returns its line channel.
func (s *Serial) connect() (chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSensorClosed
	}
	if s.mux != nil {
		return s.lines, nil
	}

	mux, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", s.name, err)
	}
	_, lines := mux.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	s.monitorWg.Add(1)
	go func() {
		defer s.monitorWg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorf("Serial monitor ended: %v", err)
		}
	}()

	for _, cmd := range s.initCommands {
		if err := mux.SendCommand(cmd); err != nil {
			cancel()
			if cerr := mux.Close(); cerr != nil {
				s.log.Warnf("Close after failed init: %v", cerr)
			}
			s.monitorWg.Wait()
			return nil, fmt.Errorf("sensor %s: init command %q: %w", s.name, cmd, err)
		}
		s.log.Debugf("Sent init command %q", cmd)
	}

	s.mux, s.lines, s.cancel = mux, lines, cancel
	s.log.Infof("Serial device connected")
	return lines, nil
}

// Read connects if needed, blocks for the next line, skips ahead to the
// newest one already buffered and returns its parsed value.
func (s *Serial) Read(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := s.connect()
	if err != nil {
		return nil, err
	}

	var line string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l, ok := <-lines:
		if !ok {
			return nil, ErrSensorClosed
		}
		line = l
	}

drain:
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				break drain
			}
			line = l
		default:
			break drain
		}
	}

	v, ok := serialmux.ParseReading(line)
	if !ok {
		return nil, fmt.Errorf("sensor %s: no value in line %q", s.name, line)
	}
	return v, nil
}

// Close stops monitoring and closes the device if it was opened. It is
// idempotent.
func (s *Serial) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		mux, cancel := s.mux, s.cancel
		s.mu.Unlock()
		if mux == nil {
			return
		}
		cancel()
		s.closeErr = mux.Close()
		s.monitorWg.Wait()
	})
	return s.closeErr
}
