package warmup

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func evenFrames(n int, interval time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * interval)
	}
	return out
}

func TestCalculateFPSStats_Even(t *testing.T) {
	stats := CalculateFPSStats(evenFrames(10, 100*time.Millisecond), time.Second)

	if stats.FramesReceived != 10 {
		t.Errorf("FramesReceived = %d, want 10", stats.FramesReceived)
	}
	if math.Abs(stats.FPSMean-10) > 1e-9 {
		t.Errorf("FPSMean = %f, want 10", stats.FPSMean)
	}
	if math.Abs(stats.FPSMin-10) > 1e-6 || math.Abs(stats.FPSMax-10) > 1e-6 {
		t.Errorf("FPS range = %f-%f, want 10-10", stats.FPSMin, stats.FPSMax)
	}
	if stats.JitterMax > 1e-9 {
		t.Errorf("JitterMax = %f, want 0", stats.JitterMax)
	}
	if !stats.IsStable {
		t.Error("evenly spaced frames should be stable")
	}
}

func TestCalculateFPSStats_Unstable(t *testing.T) {
	// Alternating 50ms and 250ms intervals
	times := []time.Time{base}
	for i := 1; i < 11; i++ {
		step := 50 * time.Millisecond
		if i%2 == 0 {
			step = 250 * time.Millisecond
		}
		times = append(times, times[i-1].Add(step))
	}

	stats := CalculateFPSStats(times, times[len(times)-1].Sub(base))
	if stats.IsStable {
		t.Errorf("expected unstable stats, got %+v", stats)
	}
	if stats.FPSMax <= stats.FPSMin {
		t.Errorf("FPSMax %f should exceed FPSMin %f", stats.FPSMax, stats.FPSMin)
	}
}

func TestCalculateFPSStats_EdgeCases(t *testing.T) {
	t.Run("no frames", func(t *testing.T) {
		stats := CalculateFPSStats(nil, time.Second)
		if stats.FramesReceived != 0 || stats.FPSMean != 0 || stats.IsStable {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("single frame", func(t *testing.T) {
		stats := CalculateFPSStats([]time.Time{base}, time.Second)
		if stats.FPSMean != 1 {
			t.Errorf("FPSMean = %f, want 1", stats.FPSMean)
		}
		if stats.IsStable {
			t.Error("a single frame cannot be stable")
		}
	})

	t.Run("identical timestamps", func(t *testing.T) {
		stats := CalculateFPSStats([]time.Time{base, base, base}, time.Second)
		if stats.FPSMax != 0 || stats.IsStable {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("zero duration", func(t *testing.T) {
		stats := CalculateFPSStats(evenFrames(3, time.Millisecond), 0)
		if stats.FPSMean != 0 {
			t.Errorf("FPSMean = %f, want 0", stats.FPSMean)
		}
	})
}

func TestRun_StopsAtEOF(t *testing.T) {
	frames := evenFrames(5, 10*time.Millisecond)
	i := 0
	next := func(ctx context.Context) (time.Time, error) {
		if i == len(frames) {
			return time.Time{}, io.EOF
		}
		i++
		return frames[i-1], nil
	}

	stats, err := Run(context.Background(), time.Second, next)
	if err != nil && !errors.Is(err, ErrUnstable) {
		t.Fatalf("Run() error = %v", err)
	}
	if stats == nil || stats.FramesReceived != 5 {
		t.Fatalf("Run() stats = %+v, want 5 frames", stats)
	}
}

func TestRun_NotEnoughFrames(t *testing.T) {
	next := func(ctx context.Context) (time.Time, error) {
		return time.Time{}, io.EOF
	}
	if _, err := Run(context.Background(), time.Second, next); err == nil {
		t.Fatal("expected error with no frames")
	}
}

func TestRun_ReadError(t *testing.T) {
	boom := errors.New("boom")
	next := func(ctx context.Context) (time.Time, error) {
		return time.Time{}, boom
	}
	if _, err := Run(context.Background(), time.Second, next); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
}

func TestRun_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := func(ctx context.Context) (time.Time, error) {
		return time.Time{}, ctx.Err()
	}
	if _, err := Run(ctx, time.Second, next); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_Deadline(t *testing.T) {
	next := func(ctx context.Context) (time.Time, error) {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return time.Now(), nil
		}
	}

	stats, err := Run(context.Background(), 100*time.Millisecond, next)
	if err != nil && !errors.Is(err, ErrUnstable) {
		t.Fatalf("Run() error = %v", err)
	}
	if stats == nil || stats.FramesReceived < 2 {
		t.Fatalf("Run() stats = %+v, want at least 2 frames", stats)
	}
}
