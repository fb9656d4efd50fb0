package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"picam-motion/pkg/camera"
	"picam-motion/pkg/difference"
	"picam-motion/pkg/indicator"
)

// Config is the service configuration. Fields left out of the YAML file keep
// the values from Default.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Camera    CameraConfig    `yaml:"camera"`
	Motion    MotionConfig    `yaml:"motion"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NTP       NTPConfig       `yaml:"ntp"`
}

type CameraConfig struct {
	Device   string          `yaml:"device"`
	FPS      int             `yaml:"fps"`
	Stream   bool            `yaml:"stream"` // keep the device streaming instead of one open per frame
	Settings camera.Settings `yaml:"settings"`
}

type MotionConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Tolerance   int           `yaml:"tolerance"`
	MinQuantity int64         `yaml:"min_quantity"`
	Aggregator  string        `yaml:"aggregator"` // count or magnitude
	Workers     int           `yaml:"workers"`

	Snapshot       bool          `yaml:"snapshot"`
	SnapshotWidth  int           `yaml:"snapshot_width"`
	SnapshotHeight int           `yaml:"snapshot_height"`
	Cooldown       time.Duration `yaml:"cooldown"`
}

type IndicatorConfig struct {
	Enabled bool `yaml:"enabled"`
	Pin     int  `yaml:"pin"`
}

type StorageConfig struct {
	Dir       string        `yaml:"dir"`
	Retention time.Duration `yaml:"retention"` // 0 keeps snapshots forever
	Schedule  string        `yaml:"schedule"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	WebdavPort int    `yaml:"webdav_port"`
	StaticsDir string `yaml:"statics"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables publishing
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type NTPConfig struct {
	Server  string        `yaml:"server"` // empty skips the clock sync
	Timeout time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Camera: CameraConfig{
			Device:   camera.DefaultDevice,
			FPS:      camera.DefaultFPS,
			Settings: camera.DefaultSettings(),
		},
		Motion: MotionConfig{
			Interval:       time.Second,
			Width:          100,
			Height:         100,
			Tolerance:      15,
			MinQuantity:    50,
			Aggregator:     "count",
			Snapshot:       true,
			SnapshotWidth:  1280,
			SnapshotHeight: 720,
			Cooldown:       10 * time.Second,
		},
		Indicator: IndicatorConfig{
			Enabled: true,
			Pin:     indicator.DefaultPin,
		},
		Storage: StorageConfig{
			Dir:       "./picam-motion",
			Retention: 7 * 24 * time.Hour,
			Schedule:  "@hourly",
		},
		Server: ServerConfig{
			Port:       9999,
			WebdavPort: 9998,
		},
		MQTT: MQTTConfig{
			ClientID: "picam-motion",
			Topic:    "picam/motion",
		},
		NTP: NTPConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result. An
// empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Device == "" {
		errs = append(errs, errors.New("camera.device is required"))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be positive, got %d", c.Camera.FPS))
	}
	if err := c.Camera.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("camera.settings: %w", err))
	}

	m := c.Motion
	if m.Interval <= 0 {
		errs = append(errs, fmt.Errorf("motion.interval must be positive, got %s", m.Interval))
	}
	if m.Width <= 0 || m.Height <= 0 {
		errs = append(errs, fmt.Errorf("motion size %dx%d must be positive", m.Width, m.Height))
	}
	if err := difference.ValidateTolerance(m.Tolerance); err != nil {
		errs = append(errs, fmt.Errorf("motion.tolerance: %w", err))
	}
	if m.MinQuantity < 0 {
		errs = append(errs, fmt.Errorf("motion.min_quantity must not be negative, got %d", m.MinQuantity))
	}
	if _, ok := difference.AggregatorByName(m.Aggregator); !ok {
		errs = append(errs, fmt.Errorf("motion.aggregator %q is unknown", m.Aggregator))
	}
	if m.Snapshot && (m.SnapshotWidth <= 0 || m.SnapshotHeight <= 0) {
		errs = append(errs, fmt.Errorf("snapshot size %dx%d must be positive", m.SnapshotWidth, m.SnapshotHeight))
	}
	if m.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("motion.cooldown must not be negative, got %s", m.Cooldown))
	}

	if c.Indicator.Pin < 0 || c.Indicator.Pin > 27 {
		errs = append(errs, fmt.Errorf("indicator.pin %d is not a BCM gpio", c.Indicator.Pin))
	}

	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir is required"))
	}
	if c.Storage.Retention < 0 {
		errs = append(errs, fmt.Errorf("storage.retention must not be negative, got %s", c.Storage.Retention))
	}
	if c.Storage.Retention > 0 && c.Storage.Schedule == "" {
		errs = append(errs, errors.New("storage.schedule is required when retention is set"))
	}

	for name, p := range map[string]int{"server.port": c.Server.Port, "server.webdav_port": c.Server.WebdavPort} {
		if p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, p))
		}
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.Topic == "" {
			errs = append(errs, errors.New("mqtt.topic is required when a broker is set"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	}

	return errors.Join(errs...)
}
