package ffmpeg

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/devicecapture/internal/media"
)

// Backend opens FFmpeg demuxers and decoders.
type Backend struct {
	opts Options
}

// New returns an FFmpeg backend. Setup runs lazily on first OpenInput.
func New(opts Options) *Backend {
	return &Backend{opts: opts}
}

// Name implements media.Backend.
func (b *Backend) Name() string { return "ffmpeg" }

// OpenInput implements media.Backend.
//
// Every native allocation is tracked by an ownership flag on the returned
// input; on any failure the partially built input is closed before
// returning, so nothing leaks regardless of which step failed.
func (b *Backend) OpenInput(source, format string, options map[string]string) (_ media.Demuxer, err error) {
	if err := Setup(b.opts); err != nil {
		return nil, err
	}

	in := &input{source: source}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	in.fc = astiav.AllocFormatContext()
	if in.fc == nil {
		return nil, errors.New("ffmpeg: failed to allocate format context")
	}
	in.allocated = true

	var inputFormat *astiav.InputFormat
	if format != "" {
		if inputFormat = astiav.FindInputFormat(format); inputFormat == nil {
			return nil, fmt.Errorf("ffmpeg: unknown input format %q", format)
		}
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range options {
		if err := dict.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
			return nil, fmt.Errorf("ffmpeg: failed to set option %s: %w", k, err)
		}
	}

	// Reads must never block the caller's loop
	in.fc.SetFlags(in.fc.Flags().Add(astiav.FormatContextFlagNonblock))

	if err := in.fc.OpenInput(source, inputFormat, dict); err != nil {
		// avformat_open_input frees the context on failure
		in.allocated = false
		return nil, fmt.Errorf("ffmpeg: failed to open %s: %w", source, err)
	}
	in.opened = true

	if err := in.fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to read stream info: %w", err)
	}

	if err := in.selectVideoStream(); err != nil {
		return nil, err
	}

	slog.Debug("ffmpeg: input opened",
		"source", source,
		"format", format,
		"stream_index", in.info.Index,
		"codec", in.info.CodecName,
	)

	return in, nil
}

// OpenDecoder implements media.Backend.
func (b *Backend) OpenDecoder(d media.Demuxer) (_ media.Decoder, err error) {
	in, ok := d.(*input)
	if !ok || in.stream == nil {
		return nil, errors.New("ffmpeg: demuxer was not opened by this backend")
	}

	dec := &decoder{}
	defer func() {
		if err != nil {
			dec.Close()
		}
	}()

	params := in.stream.CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("ffmpeg: no decoder for codec %s", params.CodecID())
	}

	dec.cc = astiav.AllocCodecContext(codec)
	if dec.cc == nil {
		return nil, errors.New("ffmpeg: failed to allocate codec context")
	}
	dec.allocated = true

	if err := params.ToCodecContext(dec.cc); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to copy codec parameters: %w", err)
	}

	if err := dec.cc.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to open decoder %s: %w", codec.Name(), err)
	}
	dec.opened = true

	// The opened context is authoritative for geometry and format
	in.info.CodecName = codec.Name()
	in.info.Width = dec.cc.Width()
	in.info.Height = dec.cc.Height()
	in.info.PixelFormat = dec.cc.PixelFormat().String()

	return dec, nil
}
