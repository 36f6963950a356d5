package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/e7canasta/devicecapture/internal/media"
)

// imageAlign is the line alignment used when flattening pictures.
const imageAlign = 1

type decoder struct {
	cc        *astiav.CodecContext
	allocated bool
	opened    bool
}

// AllocPicture implements media.Decoder.
func (d *decoder) AllocPicture() (media.Picture, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, errors.New("ffmpeg: failed to allocate frame")
	}
	return &picture{f: f}, nil
}

// SendPacket implements media.Decoder.
func (d *decoder) SendPacket(pkt media.Packet) error {
	p, ok := pkt.(*packet)
	if !ok {
		return errors.New("ffmpeg: packet was not allocated by this backend")
	}
	if !d.opened {
		return errors.New("ffmpeg: decoder is closed")
	}
	if err := d.cc.SendPacket(p.p); err != nil {
		return fmt.Errorf("ffmpeg: send packet failed: %w", err)
	}
	return nil
}

// ReceivePicture implements media.Decoder.
func (d *decoder) ReceivePicture(pic media.Picture) error {
	p, ok := pic.(*picture)
	if !ok {
		return errors.New("ffmpeg: picture was not allocated by this backend")
	}
	if !d.opened {
		return errors.New("ffmpeg: decoder is closed")
	}

	err := d.cc.ReceiveFrame(p.f)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return media.ErrNeedInput
	default:
		return fmt.Errorf("ffmpeg: receive frame failed: %w", err)
	}
}

// Close implements media.Decoder.
func (d *decoder) Close() {
	if d.allocated {
		// avcodec_free_context closes an opened context as well
		d.cc.Free()
	}
	d.allocated = false
	d.opened = false
}

type picture struct {
	f     *astiav.Frame
	freed bool
}

func (p *picture) Width() int          { return p.f.Width() }
func (p *picture) Height() int         { return p.f.Height() }
func (p *picture) PixelFormat() string { return p.f.PixelFormat().String() }

func (p *picture) CopyTo(dst []byte) ([]byte, error) {
	size, err := p.f.ImageBufferSize(imageAlign)
	if err != nil {
		return dst[:0], fmt.Errorf("ffmpeg: image buffer size: %w", err)
	}
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	if _, err := p.f.ImageCopyToBuffer(dst, imageAlign); err != nil {
		return dst[:0], fmt.Errorf("ffmpeg: image copy: %w", err)
	}
	return dst, nil
}

func (p *picture) Unref() {
	if !p.freed {
		p.f.Unref()
	}
}

func (p *picture) Free() {
	if !p.freed {
		p.f.Free()
		p.freed = true
	}
}
