package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/devicecapture/internal/media"
)

// source is the demuxer side: one pipeline, one appsink.
type source struct {
	launch   string
	pipeline *gst.Pipeline
	sink     *app.Sink
	playing  bool

	pending *gst.Sample
	info    media.StreamInfo
	caps    string
}

// AllocPacket implements media.Demuxer.
func (s *source) AllocPacket() (media.Packet, error) {
	return &packet{}, nil
}

// ReadPacket implements media.Demuxer.
func (s *source) ReadPacket(pkt media.Packet) error {
	p, ok := pkt.(*packet)
	if !ok {
		return errors.New("gstreamer: packet was not allocated by this backend")
	}
	if !s.playing {
		return errors.New("gstreamer: pipeline is closed")
	}

	p.sample = nil
	if s.pending != nil {
		p.sample, s.pending = s.pending, nil
		return nil
	}

	if err := s.busError(); err != nil {
		return err
	}

	sample := s.sink.TryPullSample(0)
	if sample == nil {
		if s.sink.IsEOS() {
			return media.ErrEndOfStream
		}
		return media.ErrWouldBlock
	}
	p.sample = sample
	return nil
}

// busError drains pending bus messages without blocking and converts the
// first error message into a classified error.
func (s *source) busError() error {
	bus := s.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			slog.Error("gstreamer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"pipeline", s.launch,
			)
			return fmt.Errorf("gstreamer: pipeline error [%s]: %s", category.String(), gerr.Error())

		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			slog.Warn("gstreamer: pipeline warning",
				"warning", gerr.Error(),
				"debug", gerr.DebugString(),
			)
		}
	}
}

// VideoStream implements media.Demuxer.
func (s *source) VideoStream() media.StreamInfo { return s.info }

// Metadata implements media.Demuxer.
func (s *source) Metadata() map[string]string {
	return map[string]string{
		"pipeline": s.launch,
		"caps":     s.caps,
	}
}

// Close implements media.Demuxer.
//
// The pipeline goes to NULL whenever it exists: a failed transition to
// PLAYING can leave elements in READY or PAUSED holding the device open.
func (s *source) Close() {
	s.pending = nil
	s.playing = false
	if s.pipeline == nil {
		return
	}
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gstreamer: failed to set pipeline to NULL", "error", err)
	}
	s.pipeline = nil
	s.sink = nil
}

// packet carries one appsink sample. Samples are reference counted by
// go-gst; dropping the reference is the release.
type packet struct {
	sample *gst.Sample
}

func (p *packet) StreamIndex() int { return 0 }
func (p *packet) Unref()           { p.sample = nil }
func (p *packet) Free()            { p.sample = nil }

// passthrough hands samples straight to pictures; decodebin already decoded
// them.
type passthrough struct {
	queued *gst.Sample
	closed bool
}

func (d *passthrough) AllocPicture() (media.Picture, error) {
	return &picture{}, nil
}

func (d *passthrough) SendPacket(pkt media.Packet) error {
	p, ok := pkt.(*packet)
	if !ok {
		return errors.New("gstreamer: packet was not allocated by this backend")
	}
	if d.closed {
		return errors.New("gstreamer: decoder is closed")
	}
	d.queued = p.sample
	return nil
}

func (d *passthrough) ReceivePicture(pic media.Picture) error {
	p, ok := pic.(*picture)
	if !ok {
		return errors.New("gstreamer: picture was not allocated by this backend")
	}
	if d.queued == nil {
		return media.ErrNeedInput
	}

	info, _, err := streamInfoFromSample(d.queued)
	if err != nil {
		return err
	}
	p.sample = d.queued
	p.width, p.height, p.format = info.Width, info.Height, info.PixelFormat
	d.queued = nil
	return nil
}

func (d *passthrough) Close() {
	d.queued = nil
	d.closed = true
}

type picture struct {
	sample        *gst.Sample
	width, height int
	format        string
}

func (p *picture) Width() int          { return p.width }
func (p *picture) Height() int         { return p.height }
func (p *picture) PixelFormat() string { return p.format }

func (p *picture) CopyTo(dst []byte) ([]byte, error) {
	if p.sample == nil {
		return dst[:0], errors.New("gstreamer: empty picture")
	}
	buffer := p.sample.GetBuffer()
	if buffer == nil {
		return dst[:0], errors.New("gstreamer: sample has no buffer")
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	if cap(dst) < len(data) {
		dst = make([]byte, len(data))
	}
	dst = dst[:len(data)]
	copy(dst, data)
	return dst, nil
}

func (p *picture) Unref() { p.sample = nil }
func (p *picture) Free()  { p.sample = nil }
