// Package gstreamer implements the media backend on top of a GStreamer
// pipeline ending in an appsink.
//
// Pipeline structure:
//
//	<device or file source> → decodebin → videoconvert → appsink
//
// decodebin performs the decoding inside the pipeline, so the decoder side
// of this backend is a passthrough: every sample pulled from the appsink is
// already a decoded picture. Reads use TryPullSample with a zero timeout,
// which never blocks.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/devicecapture/internal/media"
)

// DefaultOpenTimeout bounds how long OpenInput waits for the first sample,
// which carries the negotiated caps.
const DefaultOpenTimeout = 5 * time.Second

var (
	initOnce sync.Once
	initErr  error
)

// Setup initializes GStreamer once per process and verifies that the core
// plugins can be instantiated.
func Setup() error {
	initOnce.Do(func() {
		gst.Init(nil)

		elem, err := gst.NewElement("fakesrc")
		if err != nil {
			initErr = fmt.Errorf("gstreamer: not available or not properly installed: %w", err)
			return
		}
		elem.SetState(gst.StateNull)

		slog.Debug("gstreamer: backend initialized")
	})
	return initErr
}

// Backend opens GStreamer pipelines as media sources.
type Backend struct {
	OpenTimeout time.Duration
}

// New returns a GStreamer backend with default timeouts.
func New() *Backend {
	return &Backend{OpenTimeout: DefaultOpenTimeout}
}

// Name implements media.Backend.
func (b *Backend) Name() string { return "gstreamer" }

// OpenInput implements media.Backend.
//
// The pipeline is taken to PLAYING and the first sample is pulled (bounded
// by OpenTimeout) to learn the negotiated caps. That sample is kept and
// returned by the first ReadPacket, so no frame is lost.
func (b *Backend) OpenInput(source, format string, options map[string]string) (_ media.Demuxer, err error) {
	if err := Setup(); err != nil {
		return nil, err
	}

	launch, err := buildLaunch(source, format, options)
	if err != nil {
		return nil, err
	}

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to create pipeline: %w", err)
	}

	src := &source{launch: launch, pipeline: pipeline}
	defer func() {
		if err != nil {
			src.Close()
		}
	}()

	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: appsink not found: %w", err)
	}
	src.sink = app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("gstreamer: failed to start pipeline: %w", err)
	}
	src.playing = true

	timeout := b.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}

	first := src.sink.TryPullSample(timeout)
	if first == nil {
		if err := src.busError(); err != nil {
			return nil, err
		}
		if src.sink.IsEOS() {
			return nil, fmt.Errorf("gstreamer: %s ended before the first frame", source)
		}
		return nil, fmt.Errorf("gstreamer: no frame from %s within %v", source, timeout)
	}

	info, caps, err := streamInfoFromSample(first)
	if err != nil {
		return nil, err
	}
	src.info = info
	src.caps = caps
	src.pending = first

	slog.Debug("gstreamer: pipeline playing",
		"pipeline", launch,
		"caps", caps,
	)

	return src, nil
}

// OpenDecoder implements media.Backend.
func (b *Backend) OpenDecoder(d media.Demuxer) (media.Decoder, error) {
	if _, ok := d.(*source); !ok {
		return nil, errors.New("gstreamer: demuxer was not opened by this backend")
	}
	return &passthrough{}, nil
}

const sinkName = "devicecapture_sink"

// buildLaunch renders the pipeline description for a source. Options become
// properties of the source element, in key order.
func buildLaunch(source, format string, options map[string]string) (string, error) {
	if source == "" {
		return "", errors.New("gstreamer: empty source")
	}

	var src string
	switch format {
	case "v4l2":
		src = "v4l2src device=" + quote(source)
	case "avfoundation":
		src = "avfvideosrc device-index=" + quote(source)
	case "dshow":
		src = "ksvideosrc device-name=" + quote(strings.TrimPrefix(source, "video="))
	case "videotestsrc":
		// synthetic source; the locator is the pattern name
		src = "videotestsrc pattern=" + quote(source)
	case "":
		if strings.Contains(source, "://") {
			src = "urisourcebin uri=" + quote(source)
		} else {
			src = "filesrc location=" + quote(source)
		}
	default:
		return "", fmt.Errorf("gstreamer: unsupported input format %q", format)
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		src += " " + k + "=" + quote(options[k])
	}

	return fmt.Sprintf(
		"%s ! decodebin ! videoconvert ! appsink name=%s sync=false max-buffers=4 drop=false",
		src, sinkName,
	), nil
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
