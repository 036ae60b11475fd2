package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/sensor.display/internal/config"
	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/producer"
	"github.com/banshee-data/sensor.display/internal/serialmux"
	"github.com/banshee-data/sensor.display/internal/testutil"
	"github.com/banshee-data/sensor.display/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestSimulated_CountsFromOne(t *testing.T) {
	s := NewSimulated(0, nil)
	for want := int64(1); want <= 5; want++ {
		v, err := s.Read(context.Background())
		testutil.AssertNoError(t, err)
		if v != want {
			t.Fatalf("Read() = %v, want %d", v, want)
		}
	}
}

func TestSimulated_WaitsDelay(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewSimulated(100*time.Millisecond, clock)

	got := make(chan any, 1)
	go func() {
		v, _ := s.Read(context.Background())
		got <- v
	}()

	testutil.Eventually(t, 2*time.Second, func() bool { return clock.PendingTimers() == 1 }, "delay timer armed")
	select {
	case <-got:
		t.Fatal("Read returned before the delay elapsed")
	default:
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case v := <-got:
		if v != int64(1) {
			t.Errorf("Read() = %v, want 1", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after the delay")
	}
}

func TestSimulated_CancelDuringDelay(t *testing.T) {
	s := NewSimulated(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := s.Read(ctx)
	if !errors.Is(err, context.Canceled) || v != nil {
		t.Errorf("Read() = %v, %v; want nil, context.Canceled", v, err)
	}

	// A cancelled read does not consume a counter value.
	if n := s.count.Load(); n != 0 {
		t.Errorf("counter = %d after a cancelled read, want 0", n)
	}
}

// openPort returns an opener that serves port and counts its calls.
func openPort(port *serialmux.TestableSerialPort, calls *int) MuxOpener {
	return func() (serialmux.SerialMuxInterface, error) {
		*calls++
		return serialmux.NewSerialMux(port), nil
	}
}

func TestSerial_ReadsNewestLine(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	var opens int
	s := NewSerial("gps", openPort(port, &opens), []string{"RATE 5", "START"})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	port.AddReadData("speed=1\n")
	v, err := s.Read(ctx)
	testutil.AssertNoError(t, err)
	if v != 1.0 {
		t.Errorf("Read() = %v, want 1", v)
	}
	if got, want := port.WrittenData(), "RATE 5\nSTART\n"; got != want {
		t.Errorf("init commands written = %q, want %q", got, want)
	}

	port.AddReadData("speed=2\nspeed=3.5\n")
	// Let the monitor deliver both lines before reading.
	time.Sleep(50 * time.Millisecond)
	v, err = s.Read(ctx)
	testutil.AssertNoError(t, err)
	if v != 3.5 {
		t.Errorf("Read() = %v, want 3.5", v)
	}

	port.AddReadData("status: OK\n")
	v, err = s.Read(ctx)
	testutil.AssertNoError(t, err)
	if v != "OK" {
		t.Errorf("Read() = %v, want OK", v)
	}
	if opens != 1 {
		t.Errorf("device opened %d times, want 1", opens)
	}
}

func TestSerial_IdleUntilFirstRead(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	var opens int
	s := NewSerial("gps", openPort(port, &opens), []string{"START"})

	if opens != 0 {
		t.Errorf("device opened %d times before the first Read, want 0", opens)
	}
	if got := port.WrittenData(); got != "" {
		t.Errorf("wrote %q before the first Read, want nothing", got)
	}

	testutil.AssertNoError(t, s.Close())
	if port.CloseCount() != 0 {
		t.Errorf("port closed %d times, want 0 for a device never opened", port.CloseCount())
	}
	if _, err := s.Read(context.Background()); !errors.Is(err, ErrSensorClosed) {
		t.Errorf("Read() after Close = %v, want ErrSensorClosed", err)
	}
	if opens != 0 {
		t.Errorf("Read after Close opened the device")
	}
}

func TestSerial_ReadHonoursContext(t *testing.T) {
	var opens int
	s := NewSerial("idle", openPort(serialmux.NewTestableSerialPort(), &opens), nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() = %v, want context.DeadlineExceeded", err)
	}
}

func TestSerial_CloseEndsReads(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	var opens int
	s := NewSerial("gps", openPort(port, &opens), nil)

	port.AddReadData("speed=1\n")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Read(ctx)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.Close())
	s.Close()
	if port.CloseCount() != 1 {
		t.Errorf("port closed %d times, want 1", port.CloseCount())
	}

	if _, err := s.Read(context.Background()); !errors.Is(err, ErrSensorClosed) {
		t.Errorf("Read() after Close = %v, want ErrSensorClosed", err)
	}
}

func TestSerial_InitCommandFailure(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.WriteError = errors.New("write failed")
	var opens int
	s := NewSerial("gps", openPort(port, &opens), []string{"START"})
	defer s.Close()

	_, err := s.Read(context.Background())
	testutil.AssertError(t, err)
	if port.CloseCount() != 1 {
		t.Errorf("port should be closed after a failed init, closed %d times", port.CloseCount())
	}

	// The next Read tries a fresh connection.
	retry := serialmux.NewTestableSerialPort()
	retry.AddReadData("speed=4\n")
	s.open = openPort(retry, &opens)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := s.Read(ctx)
	testutil.AssertNoError(t, err)
	if v != 4.0 {
		t.Errorf("Read() after reconnect = %v, want 4", v)
	}
	if got := retry.WrittenData(); got != "START\n" {
		t.Errorf("init commands on retry = %q, want START", got)
	}
}

func TestSerial_OpenFailure(t *testing.T) {
	boom := errors.New("no such device")
	s := NewSerial("gps", func() (serialmux.SerialMuxInterface, error) { return nil, boom }, nil)
	defer s.Close()

	if _, err := s.Read(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Read() = %v, want wrapped %v", err, boom)
	}
}

// A simulated sensor under a producer at 100 Hz yields one reading per
// period, counting up without gaps.
func TestSimulated_PacedRateMatchesFrequency(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p, err := producer.New[any](producer.Config{
		Name:        "sensor0",
		FrequencyHz: 100,
		Clock:       clock,
	}, NewSimulated(5*time.Millisecond, clock))
	testutil.AssertNoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run()
	}()

	// One simulated second, a millisecond at a time.
	for i := 0; i < 1000; i++ {
		testutil.Eventually(t, 2*time.Second, func() bool { return clock.PendingTimers() == 1 }, "producer waiting on the clock")
		clock.Advance(time.Millisecond)
	}
	p.Stop()
	<-done

	n := p.Stats().Produced
	if n < 99 || n > 101 {
		t.Errorf("produced %d readings in one simulated second at 100 Hz, want 99..101", n)
	}
	// The queue is closed and unbounded: drain every reading in order.
	var want int64
	for {
		v, err := p.Queue().Pop(context.Background())
		if errors.Is(err, producer.ErrQueueClosed) {
			break
		}
		testutil.AssertNoError(t, err)
		want++
		if v != want {
			t.Fatalf("reading %d = %v, want %d", want, v, want)
		}
	}
	if uint64(want) != n {
		t.Errorf("queued %d readings, produced %d", want, n)
	}
}

func TestOpen(t *testing.T) {
	freq := 50.0
	serialKind := config.KindSerial
	badKind := "lidar"

	t.Run("simulated", func(t *testing.T) {
		src, err := Open(config.DefaultSensors()[0], false, nil)
		testutil.AssertNoError(t, err)
		defer src.Close()
		if _, ok := src.(simulatedSource); !ok {
			t.Errorf("Open() = %T, want simulatedSource", src)
		}
	})

	t.Run("serial dev mode", func(t *testing.T) {
		src, err := Open(config.SensorConfig{Name: "gps", Kind: &serialKind, FrequencyHz: &freq}, true, nil)
		testutil.AssertNoError(t, err)
		defer src.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := src.Read(ctx)
		testutil.AssertNoError(t, err)
		if _, ok := v.(float64); !ok {
			t.Errorf("mock reading = %T, want float64", v)
		}
	})

	t.Run("serial real port", func(t *testing.T) {
		orig := openSerialMux
		defer func() { openSerialMux = orig }()

		port := serialmux.NewTestableSerialPort()
		var gotPath string
		openSerialMux = func(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
			gotPath = path
			return serialmux.NewSerialMux(port), nil
		}

		port.AddReadData("speed=7\n")
		src, err := Open(config.SensorConfig{Name: "gps", Kind: &serialKind, Port: "/dev/ttyUSB0"}, false, nil)
		testutil.AssertNoError(t, err)
		defer src.Close()
		if gotPath != "" {
			t.Errorf("Open() opened %q before the first Read", gotPath)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := src.Read(ctx)
		testutil.AssertNoError(t, err)
		if v != 7.0 {
			t.Errorf("Read() = %v, want 7", v)
		}
		if gotPath != "/dev/ttyUSB0" {
			t.Errorf("opened %q, want /dev/ttyUSB0", gotPath)
		}
	})

	t.Run("serial open failure", func(t *testing.T) {
		orig := openSerialMux
		defer func() { openSerialMux = orig }()
		openSerialMux = func(string, serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
			return nil, errors.New("no such device")
		}
		src, err := Open(config.SensorConfig{Name: "gps", Kind: &serialKind, Port: "/dev/none"}, false, nil)
		testutil.AssertNoError(t, err)
		defer src.Close()
		_, err = src.Read(context.Background())
		testutil.AssertError(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Open(config.SensorConfig{Name: "x", Kind: &badKind}, false, nil)
		testutil.AssertError(t, err)
	})
}
