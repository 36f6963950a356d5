package gstreamer

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies pipeline errors for logs and callers.
type ErrorCategory int

const (
	// ErrCategoryDevice covers missing, busy or inaccessible capture devices.
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryCodec covers decode and caps negotiation failures.
	ErrCategoryCodec
	// ErrCategoryPermission covers access denied by the OS.
	ErrCategoryPermission
	// ErrCategoryUnknown is everything else.
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// ClassifyGStreamerError categorizes a GStreamer error.
//
// go-gst's GError does not expose the error domain, so classification is
// keyword based on the message and debug string.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classify(gerr.Error(), gerr.DebugString())
}

func classify(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	// Most specific first
	switch {
	case containsAny(combined, permissionKeywords):
		return ErrCategoryPermission
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

var permissionKeywords = []string{
	"permission denied",
	"not authorized",
	"access denied",
	"eacces",
}

var codecKeywords = []string{
	"codec",
	"decode",
	"not negotiated",
	"not-negotiated",
	"negotiation",
	"caps",
	"no decoder",
	"missing plugin",
	"h264",
	"mjpeg",
	"jpeg",
}

var deviceKeywords = []string{
	"device",
	"busy",
	"no such file",
	"not found",
	"could not open",
	"cannot identify",
	"v4l2",
	"resource",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
