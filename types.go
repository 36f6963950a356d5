package devicecapture

import (
	"errors"
	"fmt"
	"time"

	"github.com/e7canasta/devicecapture/internal/media"
	"github.com/e7canasta/devicecapture/internal/platform"
)

var (
	// ErrDeviceNotFound is returned by registry lookups that match nothing.
	ErrDeviceNotFound = errors.New("devicecapture: device not found")

	// ErrStreamMismatch is returned when the source delivers a packet for a
	// stream other than the selected video stream. It is fatal.
	ErrStreamMismatch = errors.New("devicecapture: packet from unexpected stream")

	// ErrDecoderClosed is returned by calls on a closed StreamDecoder.
	ErrDecoderClosed = errors.New("devicecapture: decoder closed")

	// ErrNoVideoStream is returned when a source carries no video stream.
	ErrNoVideoStream = media.ErrNoVideoStream

	// ErrUnsupportedPlatform is returned when no device enumerator exists
	// for the running platform.
	ErrUnsupportedPlatform = errors.New("devicecapture: unsupported platform")

	// ErrInvalidInterval is returned by DeviceWatcher.Start for a
	// non-positive interval.
	ErrInvalidInterval = errors.New("devicecapture: watch interval must be positive")

	// ErrSyncInProgress is returned by DeviceWatcher.SyncNow when another
	// sync is running.
	ErrSyncInProgress = errors.New("devicecapture: sync already in progress")
)

// DeviceInfo describes one capture device. Path is its identity.
type DeviceInfo struct {
	Name string
	Path string
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Path)
}

// DecodeStatus is the outcome of one TryDecodeNextFrame call.
type DecodeStatus int

const (
	// NoFrameAvailable means the source had nothing ready. Retry later.
	NoFrameAvailable DecodeStatus = iota
	// NewFrame means the returned Frame holds a freshly decoded picture.
	NewFrame
	// EndOfStream means the source is exhausted. It is terminal.
	EndOfStream
)

func (s DecodeStatus) String() string {
	switch s {
	case NoFrameAvailable:
		return "no-frame-available"
	case NewFrame:
		return "new-frame"
	case EndOfStream:
		return "end-of-stream"
	default:
		return fmt.Sprintf("DecodeStatus(%d)", int(s))
	}
}

// Rational is a fraction, used for frame rates.
type Rational struct {
	Num int
	Den int
}

// Float64 returns the value of the fraction, or 0 when Den is 0.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// InputFormat names a device class, as understood by the backends. The
// empty InputFormat probes the source (files and URLs).
type InputFormat string

const (
	InputFormatAuto         InputFormat = ""
	InputFormatV4L2         InputFormat = platform.FormatV4L2
	InputFormatAVFoundation InputFormat = platform.FormatAVFoundation
	InputFormatDShow        InputFormat = platform.FormatDShow
)

// SourceURL returns the locator to open a device path of this class with.
// DirectShow devices are opened as "video=<name>"; other classes use the
// path as is.
func (f InputFormat) SourceURL(path string) string {
	return platform.SourceURL(string(f), path)
}

// Frame is a decoded picture.
//
// A StreamDecoder reuses a single Frame for every picture it decodes: the
// contents are only valid until the next decode call. Use Clone to keep a
// frame.
type Frame struct {
	// Seq is the 1-based decode sequence number
	Seq uint64
	// Timestamp is when the frame was decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// PixelFormat as named by the backend (e.g. "yuyv422", "YUY2", "I420")
	PixelFormat string
	// Data holds the packed picture bytes
	Data []byte

	picture media.Picture
}

// Clone returns a copy of the frame that owns its data.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		Seq:         f.Seq,
		Timestamp:   f.Timestamp,
		Width:       f.Width,
		Height:      f.Height,
		PixelFormat: f.PixelFormat,
		Data:        make([]byte, len(f.Data)),
	}
	copy(c.Data, f.Data)
	return c
}

// CameraStats contains capture statistics for a Camera.
type CameraStats struct {
	// SessionID identifies this Camera instance in logs and events
	SessionID string `msgpack:"session_id"`
	// Device is the device path
	Device string `msgpack:"device"`
	// Backend that decodes the stream
	Backend string `msgpack:"backend"`
	// CodecName of the selected video stream
	CodecName string `msgpack:"codec"`
	// Resolution is the frame resolution (e.g., "1280x720")
	Resolution string `msgpack:"resolution"`
	// PixelFormat of decoded frames
	PixelFormat string `msgpack:"pixel_format"`
	// FrameRate advertised by the source
	FrameRate float64 `msgpack:"frame_rate"`
	// FramesDecoded is the total number of frames returned by ReadFrame
	FramesDecoded uint64 `msgpack:"frames_decoded"`
	// WouldBlocks is how often the source had nothing ready
	WouldBlocks uint64 `msgpack:"would_blocks"`
	// FPSReal is the measured frame rate since the first frame
	FPSReal float64 `msgpack:"fps_real"`
	// LastFrameAgeMS is the time since the last frame in milliseconds
	LastFrameAgeMS int64 `msgpack:"last_frame_age_ms"`
	// Uptime since the camera was opened
	Uptime time.Duration `msgpack:"uptime"`
}
