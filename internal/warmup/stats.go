// Package warmup measures the frame rate a capture device actually delivers.
//
// Cameras often advertise one rate and deliver another (auto exposure in low
// light halves the rate on many UVC devices). A short warm-up collects frame
// timestamps and reports mean rate, spread and jitter.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of mean FPS. 30 FPS mean is stable below 4.5 FPS stddev.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected inter-frame interval. 30 FPS is stable below 6.6ms.
	jitterStabilityThreshold = 0.20
)

// Stats summarizes a warm-up run.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool
	JitterMean     float64 // seconds
	JitterStdDev   float64 // seconds
	JitterMax      float64 // seconds
}

// CalculateFPSStats computes frame rate statistics from frame timestamps
// observed over totalDuration.
//
// A stream is stable when the instantaneous FPS stddev stays under 15% of
// the mean and the mean jitter stays under 20% of the expected interval.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	stats := &Stats{FramesReceived: n, Duration: totalDuration}
	if n == 0 || totalDuration <= 0 {
		return stats
	}

	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, frameTimes[i].Sub(frameTimes[i-1]).Seconds())
	}

	instantaneous := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if iv > 0 {
			instantaneous = append(instantaneous, 1.0/iv)
		}
	}
	if len(instantaneous) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = minMax(instantaneous)
	stats.FPSStdDev = stdDevAround(instantaneous, stats.FPSMean)

	expectedInterval := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expectedInterval)
	}
	stats.JitterMean = mean(jitters)
	stats.JitterStdDev = stdDevAround(jitters, stats.JitterMean)
	_, stats.JitterMax = minMax(jitters)

	stats.IsStable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expectedInterval*jitterStabilityThreshold

	return stats
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDevAround(values []float64, center float64) float64 {
	var sumSquares float64
	for _, v := range values {
		d := v - center
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
