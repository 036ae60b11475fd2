package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/sensor.display/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Sensor kinds.
const (
	KindSimulated = "simulated"
	KindSerial    = "serial"
)

// SensorConfig describes one telemetry source feeding the overlay.
type SensorConfig struct {
	Name string `json:"name"`
	// Kind is "simulated" (default) or "serial".
	Kind *string `json:"kind,omitempty"`
	// Delay is the simulated work per reading, a duration string like "100ms".
	Delay       *string  `json:"delay,omitempty"`
	FrequencyHz *float64 `json:"frequency_hz,omitempty"`

	// Serial sensors only.
	Port         string   `json:"port,omitempty"`
	InitCommands []string `json:"init_commands,omitempty"`
	serialmux.PortOptions
}

// PipelineConfig represents the root configuration of the display pipeline.
// Every field is optional; the Get* methods supply defaults so partial files
// are safe.
type PipelineConfig struct {
	Sensors []SensorConfig `json:"sensors,omitempty"`

	CameraQueueCapacity *int    `json:"camera_queue_capacity,omitempty"`
	SensorQueueCapacity *int    `json:"sensor_queue_capacity,omitempty"`
	JoinTimeout         *string `json:"join_timeout,omitempty"` // duration string like "2s"

	WindowTitle        *string  `json:"window_title,omitempty"`
	OverlayOriginX     *int     `json:"overlay_origin_x,omitempty"`
	OverlayOriginY     *int     `json:"overlay_origin_y,omitempty"`
	OverlayLineSpacing *int     `json:"overlay_line_spacing,omitempty"`
	FontSize           *float64 `json:"font_size,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// DefaultSensors returns the three simulated sensors used when no sensors are
// configured: sensor0 at 100 Hz, sensor1 at 10 Hz and sensor2 at 1 Hz, each
// with a work delay equal to its period.
func DefaultSensors() []SensorConfig {
	return []SensorConfig{
		{Name: "sensor0", Kind: ptrString(KindSimulated), Delay: ptrString("10ms"), FrequencyHz: ptrFloat64(100)},
		{Name: "sensor1", Kind: ptrString(KindSimulated), Delay: ptrString("100ms"), FrequencyHz: ptrFloat64(10)},
		{Name: "sensor2", Kind: ptrString(KindSimulated), Delay: ptrString("1s"), FrequencyHz: ptrFloat64(1)},
	}
}

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate sensor name %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	if c.CameraQueueCapacity != nil && *c.CameraQueueCapacity < 0 {
		return fmt.Errorf("camera_queue_capacity must be non-negative, got %d", *c.CameraQueueCapacity)
	}
	if c.SensorQueueCapacity != nil && *c.SensorQueueCapacity < 0 {
		return fmt.Errorf("sensor_queue_capacity must be non-negative, got %d", *c.SensorQueueCapacity)
	}

	if c.JoinTimeout != nil && *c.JoinTimeout != "" {
		d, err := time.ParseDuration(*c.JoinTimeout)
		if err != nil {
			return fmt.Errorf("invalid join_timeout '%s': %w", *c.JoinTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("join_timeout must be positive, got %s", d)
		}
	}

	if c.OverlayLineSpacing != nil && *c.OverlayLineSpacing <= 0 {
		return fmt.Errorf("overlay_line_spacing must be positive, got %d", *c.OverlayLineSpacing)
	}
	if c.FontSize != nil && *c.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %f", *c.FontSize)
	}

	return nil
}

// Validate checks a single sensor entry.
func (s SensorConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sensor name is required")
	}
	if s.FrequencyHz != nil && *s.FrequencyHz <= 0 {
		return fmt.Errorf("sensor %s: frequency_hz must be positive, got %f", s.Name, *s.FrequencyHz)
	}
	if s.Delay != nil && *s.Delay != "" {
		d, err := time.ParseDuration(*s.Delay)
		if err != nil {
			return fmt.Errorf("sensor %s: invalid delay '%s': %w", s.Name, *s.Delay, err)
		}
		if d < 0 {
			return fmt.Errorf("sensor %s: delay must be non-negative, got %s", s.Name, d)
		}
	}

	switch s.GetKind() {
	case KindSimulated:
	case KindSerial:
		if s.Port == "" {
			return fmt.Errorf("sensor %s: serial sensors require a port", s.Name)
		}
		if _, err := s.PortOptions.Normalize(); err != nil {
			return fmt.Errorf("sensor %s: %w", s.Name, err)
		}
	default:
		return fmt.Errorf("sensor %s: unknown kind %q", s.Name, s.GetKind())
	}
	return nil
}

// GetKind returns the sensor kind or "simulated".
func (s SensorConfig) GetKind() string {
	if s.Kind == nil || *s.Kind == "" {
		return KindSimulated
	}
	return strings.ToLower(*s.Kind)
}

// GetFrequencyHz returns the sensor frequency or 1 Hz.
func (s SensorConfig) GetFrequencyHz() float64 {
	if s.FrequencyHz == nil {
		return 1
	}
	return *s.FrequencyHz
}

// GetDelay returns the simulated work delay. Without an explicit delay it is
// one period at the sensor's frequency.
func (s SensorConfig) GetDelay() time.Duration {
	period := time.Duration(float64(time.Second) / s.GetFrequencyHz())
	if s.Delay == nil || *s.Delay == "" {
		return period
	}
	d, err := time.ParseDuration(*s.Delay)
	if err != nil {
		return period // default on parse error
	}
	return d
}

// GetSensors returns the configured sensors, or DefaultSensors when none are
// configured.
func (c *PipelineConfig) GetSensors() []SensorConfig {
	if len(c.Sensors) == 0 {
		return DefaultSensors()
	}
	return c.Sensors
}

// GetCameraQueueCapacity returns the camera queue capacity (0 = unbounded).
func (c *PipelineConfig) GetCameraQueueCapacity() int {
	if c.CameraQueueCapacity == nil {
		return 4
	}
	return *c.CameraQueueCapacity
}

// GetSensorQueueCapacity returns the per-sensor queue capacity (0 = unbounded).
func (c *PipelineConfig) GetSensorQueueCapacity() int {
	if c.SensorQueueCapacity == nil {
		return 1 // latest-value slot
	}
	return *c.SensorQueueCapacity
}

// GetJoinTimeout returns how long shutdown waits for each producer goroutine.
func (c *PipelineConfig) GetJoinTimeout() time.Duration {
	if c.JoinTimeout == nil || *c.JoinTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.JoinTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetWindowTitle returns the display window title.
func (c *PipelineConfig) GetWindowTitle() string {
	if c.WindowTitle == nil || *c.WindowTitle == "" {
		return "Window"
	}
	return *c.WindowTitle
}

// GetOverlayOrigin returns the baseline of the first overlay line.
func (c *PipelineConfig) GetOverlayOrigin() (x, y int) {
	x, y = 10, 30
	if c.OverlayOriginX != nil {
		x = *c.OverlayOriginX
	}
	if c.OverlayOriginY != nil {
		y = *c.OverlayOriginY
	}
	return x, y
}

// GetOverlayLineSpacing returns the vertical distance between overlay lines.
func (c *PipelineConfig) GetOverlayLineSpacing() int {
	if c.OverlayLineSpacing == nil {
		return 30
	}
	return *c.OverlayLineSpacing
}

// GetFontSize returns the overlay font size in points at scale 1.
func (c *PipelineConfig) GetFontSize() float64 {
	if c.FontSize == nil {
		return 24
	}
	return *c.FontSize
}
