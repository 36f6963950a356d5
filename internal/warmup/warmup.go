package warmup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrUnstable is returned alongside the stats when the measured rate is
// not stable.
var ErrUnstable = errors.New("warmup: frame rate unstable")

// NextFunc returns the timestamp of the next frame. It returns io.EOF when
// the source has no more frames.
type NextFunc func(ctx context.Context) (time.Time, error)

// Run consumes frames through next for the given duration and computes
// frame rate statistics.
//
// It fails when fewer than 2 frames arrive. When the rate is unstable the
// stats are still returned together with ErrUnstable so callers can decide.
func Run(ctx context.Context, duration time.Duration, next NextFunc) (*Stats, error) {
	slog.Info("warmup: starting",
		"duration", duration,
	)

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	frameTimes := make([]time.Time, 0, 64)

	for {
		ts, err := next(runCtx)
		if err != nil {
			if errors.Is(err, io.EOF) || runCtx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("warmup: read failed: %w", err)
		}
		frameTimes = append(frameTimes, ts)
	}

	// Parent cancellation aborts; our own deadline is the normal end.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(frameTimes) < 2 {
		return nil, fmt.Errorf("warmup: not enough frames received (got %d, need at least 2)", len(frameTimes))
	}

	stats := CalculateFPSStats(frameTimes, time.Since(start))

	slog.Info("warmup: complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)

	if !stats.IsStable {
		return stats, fmt.Errorf("%w (mean=%.2f Hz, stddev=%.2f, jitter=%.3fs)",
			ErrUnstable, stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	}
	return stats, nil
}
