package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/e7canasta/devicecapture"
	"github.com/e7canasta/devicecapture/internal/config"
	"github.com/e7canasta/devicecapture/internal/emitter"
)

// Version information
const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	device := flag.String("device", "", "Capture from this device path (overrides capture.device)")
	maxFrames := flag.Int("max-frames", -1, "Maximum frames to capture (overrides capture.max_frames, 0 = unlimited)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("devicewatch %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *device != "" {
		cfg.Capture.Device = *device
	}
	if *maxFrames >= 0 {
		cfg.Capture.MaxFrames = *maxFrames
	}

	slog.SetDefault(newLogger(cfg.Log, *debug))

	slog.Info("starting devicewatch",
		"version", version,
		"instance_id", cfg.InstanceID,
		"config", *configPath,
		"backend", cfg.Decoder.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	registry, err := devicecapture.NewPlatformRegistry()
	if err != nil {
		slog.Error("failed to create device registry", "error", err)
		os.Exit(1)
	}

	registry.OnNewDevice(func(d devicecapture.DeviceInfo) {
		slog.Info("device connected", "name", d.Name, "path", d.Path)
	})
	registry.OnLostDevice(func(d devicecapture.DeviceInfo) {
		slog.Info("device disconnected", "name", d.Name, "path", d.Path)
	})

	var em *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		em = emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Instance:    cfg.InstanceID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err := em.Connect(ctx); err != nil {
			// Hot-plug logging keeps working without the broker.
			slog.Error("mqtt connect failed, events will only be logged", "error", err)
			em = nil
		} else {
			registry.OnNewDevice(em.DeviceAdded)
			registry.OnLostDevice(em.DeviceRemoved)
			defer em.Disconnect()
		}
	}

	watcher := devicecapture.NewDeviceWatcher(registry,
		devicecapture.WithSyncTimeout(cfg.Watcher.SyncTimeout),
		devicecapture.WithErrorHandler(func(err error) {
			slog.Warn("device sync failed", "error", err)
		}),
	)

	if _, _, err := watcher.SyncNow(ctx); err != nil {
		slog.Warn("initial device sync failed", "error", err)
	}
	for i, d := range registry.Devices() {
		slog.Info("device available", "index", i, "name", d.Name, "path", d.Path)
	}

	if err := watcher.Start(cfg.Watcher.Interval); err != nil {
		slog.Error("failed to start device watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	errChan := make(chan error, 1)
	capturing := cfg.Capture.Device != ""
	if capturing {
		go func() {
			errChan <- runCapture(ctx, registry, cfg, em)
		}()
	}

	waitForShutdown(sigChan, errChan, cancel, capturing)

	watcher.Stop()
	stats := watcher.Stats()
	slog.Info("devicewatch stopped",
		"ticks", stats.Ticks,
		"syncs", stats.Syncs,
		"skipped_ticks", stats.SkippedTicks,
		"sync_failures", stats.Failures,
	)
}

// waitForShutdown blocks until a signal arrives or the capture returns. On a
// signal it cancels the capture and waits for it, since runCapture closes
// the camera and reports final stats on return.
func waitForShutdown(sigChan <-chan os.Signal, errChan <-chan error, cancel context.CancelFunc, capturing bool) {
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		if capturing {
			logCaptureResult(<-errChan)
		}
	case err := <-errChan:
		logCaptureResult(err)
	}
}

func logCaptureResult(err error) {
	if err != nil {
		slog.Error("capture stopped", "error", err)
		return
	}
	slog.Info("capture finished")
}

// newLogger builds the process logger. debug forces the debug level.
func newLogger(cfg config.LogConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openCaptureDevice opens path from the registry, or directly with format
// autodetection when the registry does not list it (files, URLs).
func openCaptureDevice(registry *devicecapture.DeviceRegistry, path string, cc devicecapture.CameraConfig) (*devicecapture.Camera, error) {
	cam, err := registry.OpenCameraByPath(path, cc)
	if err == nil || !errors.Is(err, devicecapture.ErrDeviceNotFound) {
		return cam, err
	}

	slog.Info("device not in registry, opening directly", "path", path)
	info := devicecapture.DeviceInfo{Name: path, Path: path}
	return devicecapture.OpenCamera(info, devicecapture.InputFormatAuto, cc)
}
