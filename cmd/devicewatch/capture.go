package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/devicecapture"
	"github.com/e7canasta/devicecapture/internal/config"
	"github.com/e7canasta/devicecapture/internal/emitter"
)

// runCapture reads frames from the configured device until ctx is done, the
// stream ends or MaxFrames is reached, reporting stats every StatsInterval.
func runCapture(ctx context.Context, registry *devicecapture.DeviceRegistry, cfg *config.Config, em *emitter.MQTTEmitter) error {
	cam, err := openCaptureDevice(registry, cfg.Capture.Device, devicecapture.CameraConfig{
		Backend:        devicecapture.BackendKind(cfg.Decoder.Backend),
		NativeLogLevel: cfg.Decoder.LogLevel,
		Options:        cfg.Decoder.Options,
		PollInterval:   cfg.Capture.PollInterval,
	})
	if err != nil {
		return err
	}
	defer cam.Close()

	dec := cam.Decoder()
	slog.Info("capture started",
		"session_id", cam.SessionID(),
		"path", cam.Info().Path,
		"codec", dec.CodecName(),
		"width", dec.FrameWidth(),
		"height", dec.FrameHeight(),
		"pixel_format", dec.PixelFormat(),
		"frame_rate", dec.FrameRate().String(),
	)

	if cfg.Capture.WarmupDuration > 0 {
		ws, err := cam.Warmup(ctx, cfg.Capture.WarmupDuration)
		switch {
		case errors.Is(err, devicecapture.ErrUnstableFrameRate):
			slog.Warn("frame rate is unstable",
				"fps_mean", ws.FPSMean,
				"fps_stddev", ws.FPSStdDev,
				"jitter_mean_s", ws.JitterMean,
			)
		case err != nil:
			return err
		default:
			slog.Info("warmup complete",
				"frames", ws.FramesReceived,
				"fps_mean", ws.FPSMean,
				"fps_stddev", ws.FPSStdDev,
				"jitter_max_s", ws.JitterMax,
			)
		}
	}

	ticker := time.NewTicker(cfg.Capture.StatsInterval)
	defer ticker.Stop()
	defer reportStats(cam, em)

	frames := 0
	for {
		frame, err := cam.ReadFrame(ctx)
		switch {
		case errors.Is(err, io.EOF):
			slog.Info("end of stream", "path", cam.Info().Path)
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		}

		frames++
		slog.Debug("frame",
			"seq", frame.Seq,
			"bytes", len(frame.Data),
			"ts", frame.Timestamp.Format("15:04:05.000"),
		)

		if cfg.Capture.MaxFrames > 0 && frames >= cfg.Capture.MaxFrames {
			slog.Info("reached maximum frames", "max_frames", cfg.Capture.MaxFrames)
			return nil
		}

		select {
		case <-ticker.C:
			reportStats(cam, em)
		default:
		}
	}
}

func reportStats(cam *devicecapture.Camera, em *emitter.MQTTEmitter) {
	s := cam.Stats()
	slog.Info("capture stats",
		"session_id", s.SessionID,
		"frames", s.FramesDecoded,
		"would_blocks", s.WouldBlocks,
		"fps_real", s.FPSReal,
		"last_frame_age_ms", s.LastFrameAgeMS,
		"uptime", s.Uptime.Round(time.Second),
	)
	if em == nil {
		return
	}
	if err := em.PublishStats(s); err != nil {
		slog.Warn("failed to publish stats", "error", err)
	}
}
