package devicecapture

import (
	"fmt"

	"github.com/e7canasta/devicecapture/internal/ffmpeg"
	"github.com/e7canasta/devicecapture/internal/gstreamer"
	"github.com/e7canasta/devicecapture/internal/media"
)

// BackendKind selects the native decoding backend.
type BackendKind string

const (
	// BackendFFmpeg decodes with FFmpeg (libavformat/libavcodec).
	BackendFFmpeg BackendKind = "ffmpeg"
	// BackendGStreamer decodes with a GStreamer decodebin pipeline.
	BackendGStreamer BackendKind = "gstreamer"
)

func newBackend(kind BackendKind, nativeLogLevel string) (media.Backend, error) {
	switch kind {
	case "", BackendFFmpeg:
		return ffmpeg.New(ffmpeg.Options{LogLevel: nativeLogLevel}), nil
	case BackendGStreamer:
		return gstreamer.New(), nil
	default:
		return nil, fmt.Errorf("devicecapture: unknown backend %q", kind)
	}
}
