package gstreamer

import (
	"errors"
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/devicecapture/internal/media"
)

// streamInfoFromSample reads the negotiated video caps carried by a sample.
func streamInfoFromSample(sample *gst.Sample) (media.StreamInfo, string, error) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return media.StreamInfo{}, "", errors.New("gstreamer: sample carries no caps")
	}

	structure := caps.GetStructureAt(0)
	info := media.StreamInfo{CodecName: structure.Name()}

	if val, err := structure.GetValue("width"); err == nil {
		if width, ok := val.(int); ok {
			info.Width = width
		}
	}
	if val, err := structure.GetValue("height"); err == nil {
		if height, ok := val.(int); ok {
			info.Height = height
		}
	}
	if val, err := structure.GetValue("format"); err == nil {
		if format, ok := val.(string); ok {
			info.PixelFormat = format
		}
	}
	if val, err := structure.GetValue("framerate"); err == nil {
		// Fractions only expose their value through the string form
		info.FrameRate = parseFraction(fmt.Sprintf("%v", val))
	}

	if info.Width <= 0 || info.Height <= 0 {
		return media.StreamInfo{}, caps.String(), fmt.Errorf("gstreamer: no video dimensions in caps %s", caps.String())
	}
	return info, caps.String(), nil
}

// parseFraction parses "N/D" or "N". Examples: "30/1", "30000/1001", "15".
func parseFraction(s string) media.Rational {
	var num, den int
	if _, err := fmt.Sscanf(s, "%d/%d", &num, &den); err == nil && den > 0 {
		return media.Rational{Num: num, Den: den}
	}
	if _, err := fmt.Sscanf(s, "%d", &num); err == nil && num > 0 {
		return media.Rational{Num: num, Den: 1}
	}
	return media.Rational{}
}
