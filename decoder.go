package devicecapture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/devicecapture/internal/media"
)

type decoderOptions struct {
	backendKind    BackendKind
	nativeLogLevel string
	backend        media.Backend
}

// DecoderOption configures NewStreamDecoder.
type DecoderOption func(*decoderOptions)

// WithBackend selects the decoding backend. Default: BackendFFmpeg.
func WithBackend(kind BackendKind) DecoderOption {
	return func(o *decoderOptions) { o.backendKind = kind }
}

// WithNativeLogLevel sets the log level of the native library (FFmpeg
// levels: quiet, panic, fatal, error, warning, info, verbose, debug, trace).
// It only takes effect for the first decoder opened in the process.
func WithNativeLogLevel(level string) DecoderOption {
	return func(o *decoderOptions) { o.nativeLogLevel = level }
}

// withMediaBackend injects a backend instance directly.
func withMediaBackend(b media.Backend) DecoderOption {
	return func(o *decoderOptions) { o.backend = b }
}

// StreamDecoder decodes the video stream of one source with a
// non-blocking pull loop.
//
// Every native resource carries its own ownership flag so Close releases
// exactly what was acquired, whether construction finished or not.
// StreamDecoder is not safe for concurrent use.
type StreamDecoder struct {
	source      string
	inputFormat InputFormat
	backend     media.Backend

	demuxer       media.Demuxer
	demuxerOpened bool
	decoder       media.Decoder
	decoderOpened bool

	packet          media.Packet
	packetAllocated bool
	packetHeld      bool // holds a payload from the last read

	frame            *Frame
	pictureAllocated bool

	stream   media.StreamInfo
	metadata map[string]string

	seq        uint64
	wouldBlock bool
	eos        bool
	closed     bool
}

// NewStreamDecoder opens source with the given input format and options and
// prepares a decoder for its best video stream. Options are applied to the
// input before it is opened. On error nothing is left allocated.
func NewStreamDecoder(source string, inputFormat InputFormat, options map[string]string, opts ...DecoderOption) (_ *StreamDecoder, err error) {
	if source == "" {
		return nil, errors.New("devicecapture: source is required")
	}

	o := decoderOptions{backendKind: BackendFFmpeg}
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		if backend, err = newBackend(o.backendKind, o.nativeLogLevel); err != nil {
			return nil, err
		}
	}

	d := &StreamDecoder{
		source:      source,
		inputFormat: inputFormat,
		backend:     backend,
	}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.demuxer, err = backend.OpenInput(source, string(inputFormat), options)
	if err != nil {
		return nil, fmt.Errorf("devicecapture: open %s: %w", source, err)
	}
	d.demuxerOpened = true

	d.decoder, err = backend.OpenDecoder(d.demuxer)
	if err != nil {
		return nil, fmt.Errorf("devicecapture: open decoder for %s: %w", source, err)
	}
	d.decoderOpened = true

	// Read after the decoder opened; it refines codec, geometry and format.
	d.stream = d.demuxer.VideoStream()
	d.metadata = d.demuxer.Metadata()

	d.packet, err = d.demuxer.AllocPacket()
	if err != nil {
		return nil, fmt.Errorf("devicecapture: %w", err)
	}
	d.packetAllocated = true

	picture, err := d.decoder.AllocPicture()
	if err != nil {
		return nil, fmt.Errorf("devicecapture: %w", err)
	}
	d.pictureAllocated = true
	d.frame = &Frame{picture: picture}

	slog.Info("devicecapture: stream decoder opened",
		"source", source,
		"input_format", string(inputFormat),
		"backend", backend.Name(),
		"codec", d.stream.CodecName,
		"resolution", fmt.Sprintf("%dx%d", d.stream.Width, d.stream.Height),
		"pixel_format", d.stream.PixelFormat,
		"frame_rate", fmt.Sprintf("%d/%d", d.stream.FrameRate.Num, d.stream.FrameRate.Den),
	)

	return d, nil
}

// TryDecodeNextFrame attempts to decode the next picture without blocking.
//
// NewFrame returns the decoder's reusable Frame, valid until the next call.
// NoFrameAvailable means the source had nothing ready; the returned Frame
// still holds the previous picture, if any. EndOfStream is terminal: every
// later call returns it again without touching the source. Errors are fatal.
func (d *StreamDecoder) TryDecodeNextFrame() (DecodeStatus, *Frame, error) {
	if d.closed {
		return NoFrameAvailable, nil, ErrDecoderClosed
	}
	if d.eos {
		return EndOfStream, nil, nil
	}

	for {
		if d.packetHeld {
			d.packet.Unref()
			d.packetHeld = false
		}

		err := d.demuxer.ReadPacket(d.packet)
		switch {
		case err == nil:
		case errors.Is(err, media.ErrWouldBlock):
			d.wouldBlock = true
			return NoFrameAvailable, d.frame, nil
		case errors.Is(err, media.ErrEndOfStream):
			d.wouldBlock = false
			d.eos = true
			slog.Debug("devicecapture: end of stream", "source", d.source, "frames", d.seq)
			return EndOfStream, nil, nil
		default:
			return NoFrameAvailable, nil, fmt.Errorf("devicecapture: read packet: %w", err)
		}
		d.packetHeld = true
		d.wouldBlock = false

		if idx := d.packet.StreamIndex(); idx != d.stream.Index {
			return NoFrameAvailable, nil, fmt.Errorf("%w: got stream %d, want %d", ErrStreamMismatch, idx, d.stream.Index)
		}

		if err := d.decoder.SendPacket(d.packet); err != nil {
			return NoFrameAvailable, nil, fmt.Errorf("devicecapture: send packet: %w", err)
		}

		d.frame.picture.Unref()
		err = d.decoder.ReceivePicture(d.frame.picture)
		switch {
		case err == nil:
		case errors.Is(err, media.ErrNeedInput):
			continue
		default:
			return NoFrameAvailable, nil, fmt.Errorf("devicecapture: receive frame: %w", err)
		}

		if err := d.fillFrame(); err != nil {
			return NoFrameAvailable, nil, err
		}
		return NewFrame, d.frame, nil
	}
}

func (d *StreamDecoder) fillFrame() error {
	pic := d.frame.picture

	data, err := pic.CopyTo(d.frame.Data)
	if err != nil {
		return fmt.Errorf("devicecapture: copy frame: %w", err)
	}

	d.seq++
	d.frame.Data = data
	d.frame.Seq = d.seq
	d.frame.Timestamp = time.Now()
	d.frame.Width = pic.Width()
	d.frame.Height = pic.Height()
	d.frame.PixelFormat = pic.PixelFormat()
	return nil
}

// Close releases every native resource the decoder acquired. It is
// idempotent and safe after a failed construction.
func (d *StreamDecoder) Close() {
	if d.closed {
		return
	}
	d.closed = true

	if d.packetAllocated {
		d.packet.Free()
		d.packetAllocated = false
		d.packetHeld = false
	}
	if d.pictureAllocated {
		d.frame.picture.Free()
		d.pictureAllocated = false
		d.frame.Data = nil
	}
	if d.decoderOpened {
		d.decoder.Close()
		d.decoderOpened = false
	}
	if d.demuxerOpened {
		d.demuxer.Close()
		d.demuxerOpened = false
	}

	slog.Debug("devicecapture: stream decoder closed", "source", d.source, "frames", d.seq)
}

// Metadata returns a copy of the source metadata tags.
func (d *StreamDecoder) Metadata() map[string]string {
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// WouldBlock reports whether the last read found nothing ready.
func (d *StreamDecoder) WouldBlock() bool { return d.wouldBlock }

// Ended reports whether the stream reached its end.
func (d *StreamDecoder) Ended() bool { return d.eos }

// Closed reports whether Close was called.
func (d *StreamDecoder) Closed() bool { return d.closed }

// Source returns the locator the decoder was opened with.
func (d *StreamDecoder) Source() string { return d.source }

// InputFormat returns the input format the decoder was opened with.
func (d *StreamDecoder) InputFormat() InputFormat { return d.inputFormat }

// BackendName returns the name of the decoding backend.
func (d *StreamDecoder) BackendName() string { return d.backend.Name() }

// CodecName returns the codec of the selected video stream.
func (d *StreamDecoder) CodecName() string { return d.stream.CodecName }

// FrameWidth returns the advertised picture width.
func (d *StreamDecoder) FrameWidth() int { return d.stream.Width }

// FrameHeight returns the advertised picture height.
func (d *StreamDecoder) FrameHeight() int { return d.stream.Height }

// PixelFormat returns the advertised pixel format.
func (d *StreamDecoder) PixelFormat() string { return d.stream.PixelFormat }

// FrameRate returns the advertised frame rate.
func (d *StreamDecoder) FrameRate() Rational {
	return Rational{Num: d.stream.FrameRate.Num, Den: d.stream.FrameRate.Den}
}
