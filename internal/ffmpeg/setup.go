// Package ffmpeg implements the media backend on top of FFmpeg through
// go-astiav.
//
// Process-wide library setup (device demuxer registration, log level and the
// log bridge into slog) happens exactly once through Setup. The first caller
// decides the log level; later calls are no-ops that return the first result.
package ffmpeg

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
)

// Options configures process-wide FFmpeg setup.
type Options struct {
	// LogLevel is one of quiet, panic, fatal, error, warning, info,
	// verbose, debug, trace. Empty means warning.
	LogLevel string
}

var (
	setupOnce sync.Once
	setupErr  error
)

// Setup registers device demuxers and routes FFmpeg logs into slog.
// Safe to call from multiple goroutines; only the first call has effect.
func Setup(opts Options) error {
	setupOnce.Do(func() {
		level, err := parseLogLevel(opts.LogLevel)
		if err != nil {
			setupErr = fmt.Errorf("ffmpeg: %w", err)
			return
		}

		astiav.RegisterAllDevices()
		astiav.SetLogLevel(level)
		astiav.SetLogCallback(func(_ astiav.Classer, l astiav.LogLevel, _, msg string) {
			logNative(l, msg)
		})

		slog.Debug("ffmpeg: backend initialized", "log_level", opts.LogLevel)
	})
	return setupErr
}

func parseLogLevel(s string) (astiav.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warning", "warn":
		return astiav.LogLevelWarning, nil
	case "quiet":
		return astiav.LogLevelQuiet, nil
	case "panic":
		return astiav.LogLevelPanic, nil
	case "fatal":
		return astiav.LogLevelFatal, nil
	case "error":
		return astiav.LogLevelError, nil
	case "info":
		return astiav.LogLevelInfo, nil
	case "verbose":
		return astiav.LogLevelVerbose, nil
	case "debug":
		return astiav.LogLevelDebug, nil
	case "trace":
		return astiav.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// logNative forwards one FFmpeg log line to slog at the closest level.
func logNative(l astiav.LogLevel, msg string) {
	msg = strings.TrimRight(msg, "\n")
	if msg == "" {
		return
	}
	switch {
	case l <= astiav.LogLevelError:
		slog.Error("ffmpeg: native", "msg", msg)
	case l <= astiav.LogLevelWarning:
		slog.Warn("ffmpeg: native", "msg", msg)
	case l <= astiav.LogLevelInfo:
		slog.Info("ffmpeg: native", "msg", msg)
	default:
		slog.Debug("ffmpeg: native", "msg", msg)
	}
}
