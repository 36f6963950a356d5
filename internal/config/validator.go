package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

const (
	defaultInstanceID     = "devicewatch"
	defaultWatchInterval  = time.Second
	defaultSyncTimeout    = 5 * time.Second
	defaultPollInterval   = 5 * time.Millisecond
	defaultStatsInterval  = 10 * time.Second
	defaultTopicPrefix    = "devicecapture"
	defaultBackend        = "ffmpeg"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultNativeLogLevel = "warning"
)

// Validate checks the configuration and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	if cfg.Watcher.Interval < 0 {
		return fmt.Errorf("watcher.interval must be > 0")
	}
	if cfg.Watcher.Interval == 0 {
		cfg.Watcher.Interval = defaultWatchInterval
	}
	if cfg.Watcher.SyncTimeout <= 0 {
		cfg.Watcher.SyncTimeout = defaultSyncTimeout
	}

	if cfg.Decoder.Backend == "" {
		cfg.Decoder.Backend = defaultBackend
	}
	if cfg.Decoder.Backend != "ffmpeg" && cfg.Decoder.Backend != "gstreamer" {
		return fmt.Errorf("decoder.backend must be ffmpeg or gstreamer, got %q", cfg.Decoder.Backend)
	}
	if cfg.Decoder.LogLevel == "" {
		cfg.Decoder.LogLevel = defaultNativeLogLevel
	}

	if cfg.Capture.PollInterval <= 0 {
		cfg.Capture.PollInterval = defaultPollInterval
	}
	if cfg.Capture.MaxFrames < 0 {
		return fmt.Errorf("capture.max_frames must be >= 0")
	}
	if cfg.Capture.WarmupDuration < 0 {
		return fmt.Errorf("capture.warmup_duration must be >= 0")
	}
	if cfg.Capture.StatsInterval <= 0 {
		cfg.Capture.StatsInterval = defaultStatsInterval
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.InstanceID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = defaultTopicPrefix
	}
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	return nil
}
