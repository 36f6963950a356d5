package devicecapture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/devicecapture/internal/warmup"
)

// DefaultPollInterval is how long ReadFrame sleeps when no frame is ready.
const DefaultPollInterval = 5 * time.Millisecond

// ErrUnstableFrameRate is returned by Camera.Warmup, together with the
// stats, when the measured frame rate is not stable.
var ErrUnstableFrameRate = warmup.ErrUnstable

// CameraConfig configures OpenCamera.
type CameraConfig struct {
	// Backend selects the decoding backend (default: BackendFFmpeg)
	Backend BackendKind
	// NativeLogLevel is the backend library log level
	NativeLogLevel string
	// Options are applied to the input before it is opened
	// (e.g. {"video_size": "640x480", "framerate": "30"} for FFmpeg)
	Options map[string]string
	// PollInterval is the sleep between empty reads (default: 5ms)
	PollInterval time.Duration
}

// Camera is a StreamDecoder bound to a capture device, with a blocking
// read, statistics and a frame rate warm-up.
type Camera struct {
	info         DeviceInfo
	decoder      *StreamDecoder
	pollInterval time.Duration
	sessionID    string
	opened       time.Time

	framesDecoded atomic.Uint64
	wouldBlocks   atomic.Uint64
	firstFrameAt  atomic.Int64 // unix nanos, 0 before the first frame
	lastFrameAt   atomic.Int64
}

// OpenCamera opens a decoder for a device of the given class.
func OpenCamera(info DeviceInfo, format InputFormat, cfg CameraConfig) (*Camera, error) {
	return openCamera(info, format, cfg)
}

// OpenCamera opens the device at index in the current snapshot.
func (r *DeviceRegistry) OpenCamera(index int, cfg CameraConfig) (*Camera, error) {
	info, err := r.GetDevice(index)
	if err != nil {
		return nil, err
	}
	return openCamera(info, r.format, cfg)
}

// OpenCameraByPath opens the device with the given path.
func (r *DeviceRegistry) OpenCameraByPath(path string, cfg CameraConfig) (*Camera, error) {
	info, err := r.GetDeviceByPath(path)
	if err != nil {
		return nil, err
	}
	return openCamera(info, r.format, cfg)
}

func openCamera(info DeviceInfo, format InputFormat, cfg CameraConfig, extra ...DecoderOption) (*Camera, error) {
	opts := []DecoderOption{
		WithBackend(cfg.Backend),
		WithNativeLogLevel(cfg.NativeLogLevel),
	}
	opts = append(opts, extra...)

	dec, err := NewStreamDecoder(format.SourceURL(info.Path), format, cfg.Options, opts...)
	if err != nil {
		return nil, err
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	c := &Camera{
		info:         info,
		decoder:      dec,
		pollInterval: poll,
		sessionID:    uuid.NewString(),
		opened:       time.Now(),
	}

	slog.Info("devicecapture: camera opened",
		"session_id", c.sessionID,
		"device", info.Name,
		"path", info.Path,
		"backend", dec.BackendName(),
	)

	return c, nil
}

// Info returns the device the camera was opened for.
func (c *Camera) Info() DeviceInfo { return c.info }

// SessionID identifies this camera instance.
func (c *Camera) SessionID() string { return c.sessionID }

// Decoder returns the underlying StreamDecoder.
func (c *Camera) Decoder() *StreamDecoder { return c.decoder }

// ReadFrame blocks until a frame is decoded, polling the decoder every
// PollInterval while the device has nothing ready. It returns io.EOF at the
// end of the stream and ctx.Err() when ctx is done. The frame is valid
// until the next ReadFrame.
func (c *Camera) ReadFrame(ctx context.Context) (*Frame, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, frame, err := c.decoder.TryDecodeNextFrame()
		if err != nil {
			return nil, err
		}

		switch status {
		case NewFrame:
			now := frame.Timestamp.UnixNano()
			c.firstFrameAt.CompareAndSwap(0, now)
			c.lastFrameAt.Store(now)
			c.framesDecoded.Add(1)
			return frame, nil

		case EndOfStream:
			return nil, io.EOF
		}

		c.wouldBlocks.Add(1)
		if timer == nil {
			timer = time.NewTimer(c.pollInterval)
		} else {
			timer.Reset(c.pollInterval)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Warmup reads frames for duration and measures the frame rate the device
// delivers. When the rate is unstable it returns the stats together with
// ErrUnstableFrameRate.
func (c *Camera) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	stats, err := warmup.Run(ctx, duration, func(ctx context.Context) (time.Time, error) {
		frame, err := c.ReadFrame(ctx)
		if err != nil {
			return time.Time{}, err
		}
		return frame.Timestamp, nil
	})
	if stats == nil {
		return nil, fmt.Errorf("devicecapture: warmup %s: %w", c.info.Path, err)
	}

	out := warmupStatsFrom(stats)
	if err != nil {
		if errors.Is(err, warmup.ErrUnstable) {
			return out, err
		}
		return out, fmt.Errorf("devicecapture: warmup %s: %w", c.info.Path, err)
	}
	return out, nil
}

// Stats returns capture statistics. Safe to call from any goroutine.
func (c *Camera) Stats() CameraStats {
	now := time.Now()
	frames := c.framesDecoded.Load()

	var fps float64
	var lastAge int64
	if first := c.firstFrameAt.Load(); first != 0 {
		last := c.lastFrameAt.Load()
		if span := time.Duration(last - first).Seconds(); span > 0 && frames > 1 {
			fps = float64(frames-1) / span
		}
		lastAge = now.Sub(time.Unix(0, last)).Milliseconds()
	}

	return CameraStats{
		SessionID:      c.sessionID,
		Device:         c.info.Path,
		Backend:        c.decoder.BackendName(),
		CodecName:      c.decoder.CodecName(),
		Resolution:     fmt.Sprintf("%dx%d", c.decoder.FrameWidth(), c.decoder.FrameHeight()),
		PixelFormat:    c.decoder.PixelFormat(),
		FrameRate:      c.decoder.FrameRate().Float64(),
		FramesDecoded:  frames,
		WouldBlocks:    c.wouldBlocks.Load(),
		FPSReal:        fps,
		LastFrameAgeMS: lastAge,
		Uptime:         now.Sub(c.opened),
	}
}

// Close releases the decoder. Idempotent.
func (c *Camera) Close() {
	if c.decoder.Closed() {
		return
	}
	c.decoder.Close()
	slog.Info("devicecapture: camera closed",
		"session_id", c.sessionID,
		"path", c.info.Path,
		"frames", c.framesDecoded.Load(),
	)
}
