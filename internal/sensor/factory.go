package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/sensor.display/internal/config"
	"github.com/banshee-data/sensor.display/internal/serialmux"
	"github.com/banshee-data/sensor.display/internal/timeutil"
)

// Source is a sensor the pipeline reads from and releases at shutdown.
type Source interface {
	Read(ctx context.Context) (any, error)
	Close() error
}

// openSerialMux opens a real serial device; replaced in tests.
var openSerialMux = func(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
	return serialmux.NewRealSerialMux(path, opts)
}

// Open builds the sensor described by sc. Serial devices are not opened
// until the sensor's first Read. In dev mode serial sensors are backed by a
// mock device that emits one line per period instead of real hardware.
func Open(sc config.SensorConfig, dev bool, clock timeutil.Clock) (Source, error) {
	switch sc.GetKind() {
	case config.KindSimulated:
		return simulatedSource{NewSimulated(sc.GetDelay(), clock)}, nil

	case config.KindSerial:
		var open MuxOpener
		if dev {
			period := time.Duration(float64(time.Second) / sc.GetFrequencyHz())
			open = func() (serialmux.SerialMuxInterface, error) {
				return serialmux.NewMockSerialMux(period), nil
			}
		} else {
			port, opts := sc.Port, sc.PortOptions
			open = func() (serialmux.SerialMuxInterface, error) {
				return openSerialMux(port, opts)
			}
		}
		return NewSerial(sc.Name, open, sc.InitCommands), nil

	default:
		return nil, fmt.Errorf("sensor %s: unknown kind %q", sc.Name, sc.GetKind())
	}
}

// simulatedSource gives Simulated a no-op Close.
type simulatedSource struct {
	*Simulated
}

func (simulatedSource) Close() error { return nil }
