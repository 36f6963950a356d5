package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/devicecapture/internal/media"
)

// input owns one AVFormatContext.
//
// allocated and opened are tracked separately: a context can be allocated
// but never opened, and an opened context is released by CloseInput rather
// than Free.
type input struct {
	source    string
	fc        *astiav.FormatContext
	allocated bool
	opened    bool

	stream *astiav.Stream
	info   media.StreamInfo
}

func (in *input) selectVideoStream() error {
	for _, s := range in.fc.Streams() {
		params := s.CodecParameters()
		if params.MediaType() != astiav.MediaTypeVideo {
			continue
		}

		rate := s.AvgFrameRate()
		if rate.Num() == 0 || rate.Den() == 0 {
			rate = s.RFrameRate()
		}

		in.stream = s
		in.info = media.StreamInfo{
			Index:     s.Index(),
			Width:     params.Width(),
			Height:    params.Height(),
			FrameRate: media.Rational{Num: rate.Num(), Den: rate.Den()},
		}
		return nil
	}
	return fmt.Errorf("ffmpeg: %s: %w", in.source, media.ErrNoVideoStream)
}

// AllocPacket implements media.Demuxer.
func (in *input) AllocPacket() (media.Packet, error) {
	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, errors.New("ffmpeg: failed to allocate packet")
	}
	return &packet{p: pkt}, nil
}

// ReadPacket implements media.Demuxer.
func (in *input) ReadPacket(pkt media.Packet) error {
	p, ok := pkt.(*packet)
	if !ok {
		return errors.New("ffmpeg: packet was not allocated by this backend")
	}
	if !in.opened {
		return errors.New("ffmpeg: input is closed")
	}

	err := in.fc.ReadFrame(p.p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return media.ErrWouldBlock
	case errors.Is(err, astiav.ErrEof):
		return media.ErrEndOfStream
	default:
		return fmt.Errorf("ffmpeg: read failed: %w", err)
	}
}

// VideoStream implements media.Demuxer.
func (in *input) VideoStream() media.StreamInfo { return in.info }

// Metadata implements media.Demuxer.
func (in *input) Metadata() map[string]string {
	tags := make(map[string]string)
	if !in.opened {
		return tags
	}

	dict := in.fc.Metadata()
	if dict == nil {
		return tags
	}

	var prev *astiav.DictionaryEntry
	for {
		e := dict.Get("", prev, astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix))
		if e == nil {
			break
		}
		tags[e.Key()] = e.Value()
		prev = e
	}
	return tags
}

// Close implements media.Demuxer.
func (in *input) Close() {
	switch {
	case in.opened:
		in.fc.CloseInput()
	case in.allocated:
		in.fc.Free()
	}
	in.opened = false
	in.allocated = false
	in.stream = nil
}

type packet struct {
	p     *astiav.Packet
	freed bool
}

func (p *packet) StreamIndex() int { return p.p.StreamIndex() }

func (p *packet) Unref() {
	if !p.freed {
		p.p.Unref()
	}
}

func (p *packet) Free() {
	if !p.freed {
		p.p.Free()
		p.freed = true
	}
}
