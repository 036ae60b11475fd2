package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/sensor.display/internal/camera"
	"github.com/banshee-data/sensor.display/internal/compositor"
	"github.com/banshee-data/sensor.display/internal/config"
	"github.com/banshee-data/sensor.display/internal/diagnostics"
	"github.com/banshee-data/sensor.display/internal/display"
	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/overlay"
	"github.com/banshee-data/sensor.display/internal/sensor"
	"github.com/banshee-data/sensor.display/internal/version"
)

var log = monitoring.For("Main")

// run wires the pipeline from opts and blocks until it has shut down.
func run(ctx context.Context, opts options) error {
	// The terminal display owns stdout and stderr while it runs.
	var mirror io.Writer
	if opts.Display == displayHeadless {
		mirror = os.Stderr
	}
	logFile, err := monitoring.OpenLogFile(opts.LogFile, mirror)
	if err != nil {
		return err
	}
	defer logFile.Close()
	monitoring.SetLevel(opts.LogLevel)

	log.Infof("sensordisplay %s run %s", version.String(), uuid.NewString())

	cfg := config.EmptyPipelineConfig()
	if opts.ConfigPath != "" {
		cfg, err = config.LoadPipelineConfig(opts.ConfigPath)
		if err != nil {
			log.Errorf("Failed to load config %s: %v", opts.ConfigPath, err)
			return err
		}
	}

	capturer, err := camera.Lookup(opts.CameraBackend)
	if err != nil {
		log.Errorf("%v", err)
		return err
	}

	drawer, err := overlay.NewFontDrawer(cfg.GetFontSize())
	if err != nil {
		log.Errorf("Failed to load overlay font: %v", err)
		return err
	}
	defer drawer.Close()

	recorder := diagnostics.NewPacingRecorder(0)
	recorder.SetTarget(compositor.CameraName, camera.FrequencyHz)

	var specs []compositor.SensorSpec
	for _, sc := range cfg.GetSensors() {
		src, err := sensor.Open(sc, opts.Dev, nil)
		if err != nil {
			log.Errorf("Failed to open sensor %s: %v", sc.Name, err)
			return err
		}
		defer src.Close()
		recorder.SetTarget(sc.Name, sc.GetFrequencyHz())
		specs = append(specs, compositor.SensorSpec{
			Name:        sc.Name,
			FrequencyHz: sc.GetFrequencyHz(),
			Source:      src,
		})
	}

	var window display.Window
	switch opts.Display {
	case displayHeadless:
		window = display.NewHeadlessWindow(opts.SnapshotPath)
	default:
		window = display.NewTerminalWindow()
	}

	layout := overlay.DefaultLayout()
	x, y := cfg.GetOverlayOrigin()
	layout.Origin.X, layout.Origin.Y = x, y
	layout.LineSpacing = cfg.GetOverlayLineSpacing()

	comp, err := compositor.New(compositor.Config{
		Capturer:            capturer,
		CameraIndex:         opts.CameraIndex,
		Resolution:          opts.Resolution,
		CameraQueueCapacity: cfg.GetCameraQueueCapacity(),
		Sensors:             specs,
		SensorQueueCapacity: cfg.GetSensorQueueCapacity(),
		Window:              window,
		DisplayFrequencyHz:  opts.FrequencyHz,
		WindowTitle:         cfg.GetWindowTitle(),
		Overlay:             drawer,
		Layout:              layout,
		JoinTimeout:         cfg.GetJoinTimeout(),
		OnReading:           recorder.Record,
	})
	if err != nil {
		log.Errorf("Failed to build pipeline: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	runErr := comp.Run(ctx)

	for _, s := range comp.Stats() {
		log.Infof("%s: %d readings, %d read errors, %d dropped", s.Name, s.Produced, s.ReadErrors, s.Dropped)
	}
	recorder.LogSummary()
	if opts.PlotDir != "" {
		n, err := recorder.GeneratePlots(opts.PlotDir)
		if err != nil {
			log.Warnf("Failed to write pacing plots: %v", err)
		} else {
			log.Infof("Wrote %d pacing plots to %s", n, opts.PlotDir)
		}
	}
	if abandoned := comp.Abandoned(); len(abandoned) > 0 {
		log.Warnf("Exiting with %d abandoned threads: %v", len(abandoned), abandoned)
	}

	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}
	log.Infof("Exited cleanly")
	return nil
}
