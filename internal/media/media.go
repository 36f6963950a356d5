// Package media defines the contract between the decode pump and a native
// decoding backend.
//
// A backend hands out two stateful objects per opened source:
//
//	Demuxer  - owns the format context; reads packets without blocking
//	Decoder  - owns the codec context; turns packets into pictures
//
// Packets and pictures are allocated once by the decode pump and reused
// across reads. Backends report flow conditions through the sentinel errors
// below; the pump turns them into DecodeStatus values and never lets them
// escape to callers.
package media

import "errors"

var (
	// ErrWouldBlock is returned by ReadPacket when no packet is available yet.
	ErrWouldBlock = errors.New("media: would block")

	// ErrEndOfStream is returned by ReadPacket when the source is exhausted.
	ErrEndOfStream = errors.New("media: end of stream")

	// ErrNeedInput is returned by ReceivePicture when the decoder buffered
	// the packet and has nothing to emit yet.
	ErrNeedInput = errors.New("media: decoder needs more input")

	// ErrNoVideoStream is returned by OpenInput when the source carries no
	// video stream.
	ErrNoVideoStream = errors.New("no video stream")
)

// Rational is a fraction (frame rates, time bases).
type Rational struct {
	Num int
	Den int
}

// StreamInfo describes the video stream selected at open time.
type StreamInfo struct {
	Index       int
	CodecName   string
	Width       int
	Height      int
	PixelFormat string
	FrameRate   Rational
}

// Packet is a reusable container for one undecoded unit of stream data.
type Packet interface {
	// StreamIndex reports which stream of the source the packet belongs to.
	StreamIndex() int
	// Unref drops the payload but keeps the container for reuse.
	Unref()
	// Free releases the container. Safe to call once.
	Free()
}

// Picture is a reusable container for one decoded image.
type Picture interface {
	Width() int
	Height() int
	PixelFormat() string
	// CopyTo writes the image into dst, growing it if needed, and returns
	// the filled slice. dst's backing array is reused whenever it is large
	// enough.
	CopyTo(dst []byte) ([]byte, error)
	Unref()
	Free()
}

// Demuxer reads packets from an opened source.
type Demuxer interface {
	// AllocPacket returns a packet container suitable for ReadPacket.
	AllocPacket() (Packet, error)
	// ReadPacket fills pkt without blocking. It returns ErrWouldBlock when
	// nothing is ready and ErrEndOfStream when the source is exhausted.
	ReadPacket(pkt Packet) error
	// VideoStream returns the selected video stream.
	VideoStream() StreamInfo
	// Metadata returns the source-level metadata tags.
	Metadata() map[string]string
	// Close releases the format context. Idempotent.
	Close()
}

// Decoder decodes packets of the selected stream.
type Decoder interface {
	// AllocPicture returns a picture container suitable for ReceivePicture.
	AllocPicture() (Picture, error)
	SendPacket(pkt Packet) error
	// ReceivePicture fills pic. It returns ErrNeedInput when the decoder
	// must be fed more packets first.
	ReceivePicture(pic Picture) error
	// Close releases the codec context. Idempotent.
	Close()
}

// Backend opens sources and decoders. Implementations perform their own
// process-wide setup exactly once, lazily, on first use.
type Backend interface {
	Name() string
	// OpenInput opens source with the given input format (empty means
	// probe) and applies options before opening. On error nothing allocated
	// by the call is left behind.
	OpenInput(source, format string, options map[string]string) (Demuxer, error)
	// OpenDecoder opens a decoder for the demuxer's selected video stream.
	OpenDecoder(d Demuxer) (Decoder, error)
}
