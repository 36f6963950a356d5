package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the devicewatch configuration.
type Config struct {
	InstanceID string        `yaml:"instance_id"`
	Log        LogConfig     `yaml:"log"`
	Watcher    WatcherConfig `yaml:"watcher"`
	Decoder    DecoderConfig `yaml:"decoder"`
	Capture    CaptureConfig `yaml:"capture"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// WatcherConfig controls hot-plug polling.
type WatcherConfig struct {
	Interval    time.Duration `yaml:"interval"`
	SyncTimeout time.Duration `yaml:"sync_timeout"` // bound on one enumeration
}

// DecoderConfig selects and tunes the decoding backend.
type DecoderConfig struct {
	Backend  string            `yaml:"backend"`   // ffmpeg, gstreamer
	LogLevel string            `yaml:"log_level"` // native backend log level
	Options  map[string]string `yaml:"options"`   // passed to the input before open
}

// CaptureConfig drives the optional capture loop.
type CaptureConfig struct {
	Device         string        `yaml:"device"` // path, or empty to disable
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxFrames      int           `yaml:"max_frames"` // 0 means unlimited
	WarmupDuration time.Duration `yaml:"warmup_duration"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
}

// MQTTConfig contains MQTT broker settings for hot-plug events.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
