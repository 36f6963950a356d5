package devicecapture

import (
	"context"
	"errors"
	"sync"

	"github.com/e7canasta/devicecapture/internal/media"
)

// fakeRead is one scripted ReadPacket result.
type fakeRead struct {
	stream int
	err    error
}

type fakeBackend struct {
	script  []fakeRead
	tail    error // returned once the script is exhausted
	info    media.StreamInfo
	meta    map[string]string
	needIn  int // ReceivePicture returns ErrNeedInput this many times first
	openErr error
	decErr  error
	picErr  error

	demux *fakeDemuxer
	dec   *fakeDecoder
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) OpenInput(source, format string, options map[string]string) (media.Demuxer, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.demux = &fakeDemuxer{b: b}
	return b.demux, nil
}

func (b *fakeBackend) OpenDecoder(d media.Demuxer) (media.Decoder, error) {
	if b.decErr != nil {
		return nil, b.decErr
	}
	b.dec = &fakeDecoder{b: b, needIn: b.needIn}
	return b.dec, nil
}

type fakeDemuxer struct {
	b       *fakeBackend
	pos     int
	reads   int
	closes  int
	packets []*fakePacket
}

func (d *fakeDemuxer) AllocPacket() (media.Packet, error) {
	p := &fakePacket{}
	d.packets = append(d.packets, p)
	return p, nil
}

func (d *fakeDemuxer) ReadPacket(pkt media.Packet) error {
	d.reads++
	p := pkt.(*fakePacket)
	if p.loaded {
		return errors.New("fake: packet read while still holding a payload")
	}
	if d.pos >= len(d.b.script) {
		return d.b.tail
	}
	r := d.b.script[d.pos]
	d.pos++
	if r.err != nil {
		return r.err
	}
	p.stream = r.stream
	p.loaded = true
	return nil
}

func (d *fakeDemuxer) VideoStream() media.StreamInfo { return d.b.info }
func (d *fakeDemuxer) Metadata() map[string]string   { return d.b.meta }
func (d *fakeDemuxer) Close()                        { d.closes++ }

type fakePacket struct {
	stream int
	loaded bool
	frees  int
}

func (p *fakePacket) StreamIndex() int { return p.stream }
func (p *fakePacket) Unref()           { p.loaded = false }
func (p *fakePacket) Free()            { p.frees++; p.loaded = false }

type fakeDecoder struct {
	b        *fakeBackend
	needIn   int
	pending  int
	decoded  int
	closes   int
	pictures []*fakePicture
}

func (d *fakeDecoder) AllocPicture() (media.Picture, error) {
	if d.b.picErr != nil {
		return nil, d.b.picErr
	}
	p := &fakePicture{}
	d.pictures = append(d.pictures, p)
	return p, nil
}

func (d *fakeDecoder) SendPacket(pkt media.Packet) error {
	if !pkt.(*fakePacket).loaded {
		return errors.New("fake: empty packet sent")
	}
	d.pending++
	return nil
}

func (d *fakeDecoder) ReceivePicture(pic media.Picture) error {
	if d.needIn > 0 {
		d.needIn--
		d.pending--
		return media.ErrNeedInput
	}
	if d.pending == 0 {
		return media.ErrNeedInput
	}
	d.pending--
	d.decoded++

	p := pic.(*fakePicture)
	p.width, p.height = d.b.info.Width, d.b.info.Height
	p.data = []byte{byte(d.decoded), byte(d.decoded), byte(d.decoded)}
	return nil
}

func (d *fakeDecoder) Close() { d.closes++ }

type fakePicture struct {
	width, height int
	data          []byte
	unrefs        int
	frees         int
}

func (p *fakePicture) Width() int          { return p.width }
func (p *fakePicture) Height() int         { return p.height }
func (p *fakePicture) PixelFormat() string { return "rgb24" }

func (p *fakePicture) CopyTo(dst []byte) ([]byte, error) {
	if cap(dst) < len(p.data) {
		dst = make([]byte, len(p.data))
	}
	dst = dst[:len(p.data)]
	copy(dst, p.data)
	return dst, nil
}

func (p *fakePicture) Unref() { p.unrefs++ }
func (p *fakePicture) Free()  { p.frees++ }

func packets(n int) []fakeRead {
	reads := make([]fakeRead, n)
	return reads
}

func defaultInfo() media.StreamInfo {
	return media.StreamInfo{
		Index:       0,
		CodecName:   "rawvideo",
		Width:       4,
		Height:      2,
		PixelFormat: "rgb24",
		FrameRate:   media.Rational{Num: 30, Den: 1},
	}
}

// fakeEnumerator returns scripted device lists.
type fakeEnumerator struct {
	mu      sync.Mutex
	devices []DeviceInfo
	err     error
	calls   int
	block   chan struct{} // when set, Enumerate waits on it
	entered chan struct{} // when set, signalled on entry
}

func (e *fakeEnumerator) set(devices ...DeviceInfo) {
	e.mu.Lock()
	e.devices = devices
	e.mu.Unlock()
}

func (e *fakeEnumerator) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *fakeEnumerator) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	e.mu.Lock()
	e.calls++
	block, entered := e.block, e.entered
	devices := append([]DeviceInfo(nil), e.devices...)
	err := e.err
	e.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	return devices, err
}

func (e *fakeEnumerator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
