package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.InstanceID != "devicewatch" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
	if cfg.Watcher.Interval != time.Second {
		t.Errorf("Watcher.Interval = %v, want 1s", cfg.Watcher.Interval)
	}
	if cfg.Watcher.SyncTimeout != 5*time.Second {
		t.Errorf("Watcher.SyncTimeout = %v, want 5s", cfg.Watcher.SyncTimeout)
	}
	if cfg.Decoder.Backend != "ffmpeg" {
		t.Errorf("Decoder.Backend = %q, want ffmpeg", cfg.Decoder.Backend)
	}
	if cfg.Capture.PollInterval != 5*time.Millisecond {
		t.Errorf("Capture.PollInterval = %v", cfg.Capture.PollInterval)
	}
	if cfg.MQTT.ClientID != "devicewatch" || cfg.MQTT.TopicPrefix != "devicecapture" {
		t.Errorf("MQTT defaults = %+v", cfg.MQTT)
	}
}

func TestParse_Full(t *testing.T) {
	data := `
instance_id: lab-cam-01
log:
  level: debug
  format: json
watcher:
  interval: 250ms
  sync_timeout: 2s
decoder:
  backend: gstreamer
  log_level: error
  options:
    video_size: 640x480
    framerate: "30"
capture:
  device: /dev/video0
  poll_interval: 10ms
  max_frames: 100
  warmup_duration: 3s
mqtt:
  enabled: true
  broker: localhost:1883
  topic_prefix: lab/
  qos: 1
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Watcher.Interval != 250*time.Millisecond {
		t.Errorf("Watcher.Interval = %v", cfg.Watcher.Interval)
	}
	if cfg.Decoder.Options["video_size"] != "640x480" || cfg.Decoder.Options["framerate"] != "30" {
		t.Errorf("Decoder.Options = %v", cfg.Decoder.Options)
	}
	if cfg.Capture.Device != "/dev/video0" || cfg.Capture.MaxFrames != 100 {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
	if cfg.Capture.WarmupDuration != 3*time.Second {
		t.Errorf("Capture.WarmupDuration = %v", cfg.Capture.WarmupDuration)
	}
	if cfg.MQTT.TopicPrefix != "lab" {
		t.Errorf("TopicPrefix = %q, want trailing slash trimmed", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.ClientID != "lab-cam-01" {
		t.Errorf("ClientID = %q", cfg.MQTT.ClientID)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad instance id", "instance_id: Lab_Cam", "instance_id"},
		{"negative interval", "watcher:\n  interval: -1s", "watcher.interval"},
		{"unknown backend", "decoder:\n  backend: vlc", "decoder.backend"},
		{"mqtt without broker", "mqtt:\n  enabled: true", "mqtt.broker"},
		{"qos out of range", "mqtt:\n  qos: 3", "mqtt.qos"},
		{"negative max frames", "capture:\n  max_frames: -1", "capture.max_frames"},
		{"bad log format", "log:\n  format: xml", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_BadDuration(t *testing.T) {
	if _, err := Parse([]byte("watcher:\n  interval: soon")); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devicewatch.yaml")
	if err := os.WriteFile(path, []byte("instance_id: desk\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InstanceID != "desk" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Decoder.Backend != "ffmpeg" || cfg.Watcher.Interval != time.Second {
		t.Errorf("Default() = %+v", cfg)
	}
}
