package devicecapture

import (
	"time"

	"github.com/e7canasta/devicecapture/internal/warmup"
)

// WarmupStats contains frame rate statistics measured during a warm-up.
type WarmupStats struct {
	// FramesReceived is the number of frames received during warm-up
	FramesReceived int
	// Duration is the actual warm-up duration
	Duration time.Duration
	// FPSMean is the mean FPS across all frames
	FPSMean float64
	// FPSStdDev is the standard deviation of the instantaneous FPS
	FPSStdDev float64
	// FPSMin is the minimum instantaneous FPS
	FPSMin float64
	// FPSMax is the maximum instantaneous FPS
	FPSMax float64
	// IsStable is true if stddev < 15% of mean and jitter < 20% of the interval
	IsStable bool
	// JitterMean is the mean inter-frame interval deviation in seconds
	JitterMean float64
	// JitterStdDev is the standard deviation of the jitter in seconds
	JitterStdDev float64
	// JitterMax is the largest jitter observed in seconds
	JitterMax float64
}

// CalculateFPSStats computes frame rate statistics from frame timestamps
// observed over totalDuration.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	return warmupStatsFrom(warmup.CalculateFPSStats(frameTimes, totalDuration))
}

func warmupStatsFrom(s *warmup.Stats) *WarmupStats {
	return &WarmupStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}
