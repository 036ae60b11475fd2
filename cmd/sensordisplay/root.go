package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/banshee-data/sensor.display/internal/camera"
	"github.com/banshee-data/sensor.display/internal/monitoring"
	"github.com/banshee-data/sensor.display/internal/version"
)

// Display backends.
const (
	displayTerminal = "terminal"
	displayHeadless = "headless"
)

const envPrefix = "SENSORDISPLAY"

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "sensordisplay",
		Short: "Camera feed with live sensor overlay",
		Long: `sensordisplay captures frames from a camera, reads every configured
sensor at its own rate and shows each frame with the newest sensor
readings drawn on top. Press q to quit.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v.GetBool("version") {
				fmt.Fprintln(cmd.OutOrStdout(), "sensordisplay", version.String())
				return nil
			}
			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}

	bindFlags(cmd.Flags(), v)
	return cmd
}

// bindFlags defines the command line on f and binds it into v. Every flag
// can also be set from the environment, e.g. SENSORDISPLAY_LOG_LEVEL for
// --log-level.
func bindFlags(f *pflag.FlagSet, v *viper.Viper) {
	f.Int("camera_index", 0, "Index of the camera to open")
	f.String("resolution", camera.DefaultResolution.String(), "Capture resolution as WIDTHxHEIGHT")
	f.Int("frequency", 30, "Display frequency in Hz")
	f.String("config", "", "Pipeline config JSON file (default: built-in sensors)")
	f.String("log-file", monitoring.DefaultLogPath, "Append-only application log")
	f.String("log-level", "info", "Minimum log level: debug, info, warn or error")
	f.String("camera-backend", camera.DefaultBackend(), fmt.Sprintf("Camera backend %v", camera.Backends()))
	f.String("display", displayTerminal, "Display backend: terminal or headless")
	f.String("snapshot", "", "Headless only: write the last frame to this PNG file")
	f.Duration("duration", 0, "Stop after this long (0 runs until quit)")
	f.String("plot-dir", "", "Write pacing plots to this directory at shutdown")
	f.Bool("dev", false, "Run serial sensors against a mock device")
	f.Bool("version", false, "Print the version and exit")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// options is the resolved command line.
type options struct {
	CameraIndex   int
	Resolution    camera.Resolution
	FrequencyHz   int
	ConfigPath    string
	LogFile       string
	LogLevel      monitoring.Level
	CameraBackend string
	Display       string
	SnapshotPath  string
	Duration      time.Duration
	PlotDir       string
	Dev           bool
}

func optionsFrom(v *viper.Viper) (options, error) {
	res, err := camera.ParseResolution(v.GetString("resolution"))
	if err != nil {
		return options{}, err
	}
	level, err := monitoring.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return options{}, err
	}
	opts := options{
		CameraIndex:   v.GetInt("camera_index"),
		Resolution:    res,
		FrequencyHz:   v.GetInt("frequency"),
		ConfigPath:    v.GetString("config"),
		LogFile:       v.GetString("log-file"),
		LogLevel:      level,
		CameraBackend: v.GetString("camera-backend"),
		Display:       v.GetString("display"),
		SnapshotPath:  v.GetString("snapshot"),
		Duration:      v.GetDuration("duration"),
		PlotDir:       v.GetString("plot-dir"),
		Dev:           v.GetBool("dev"),
	}
	if opts.FrequencyHz <= 0 {
		return options{}, fmt.Errorf("frequency must be positive, got %d", opts.FrequencyHz)
	}
	switch opts.Display {
	case displayTerminal, displayHeadless:
	default:
		return options{}, fmt.Errorf("unknown display %q (want %s or %s)", opts.Display, displayTerminal, displayHeadless)
	}
	if opts.SnapshotPath != "" && opts.Display != displayHeadless {
		return options{}, fmt.Errorf("--snapshot requires --display=%s", displayHeadless)
	}
	return opts, nil
}
