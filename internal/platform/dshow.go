package platform

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"
)

// DShow enumerates Windows DirectShow video devices by asking ffmpeg to list
// them. Device paths are the alternative (moniker) names when ffmpeg prints
// one, which stay stable when two cameras share a friendly name.
type DShow struct {
	FFmpegPath string
	Run        CommandRunner
}

// NewDShow returns an enumerator. Empty ffmpegPath means "ffmpeg" from PATH;
// nil run means ExecRunner.
func NewDShow(ffmpegPath string, run CommandRunner) *DShow {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if run == nil {
		run = ExecRunner
	}
	return &DShow{FFmpegPath: ffmpegPath, Run: run}
}

// InputFormat implements Enumerator.
func (d *DShow) InputFormat() string { return FormatDShow }

// Enumerate implements Enumerator.
func (d *DShow) Enumerate(ctx context.Context) ([]Device, error) {
	out, err := d.Run(ctx, d.FFmpegPath,
		"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy")
	if err != nil {
		return nil, err
	}
	return parseDShow(out)
}

var (
	dshowNameRe = regexp.MustCompile(`^"(.+)"\s*(?:\((video|audio|none)\))?$`)
	dshowAltRe  = regexp.MustCompile(`^Alternative name\s+"(.+)"$`)
	dshowNoneRe = regexp.MustCompile(`^Could not enumerate (?:video|audio) devices`)
)

// parseDShow handles both listing styles ffmpeg has used. Older builds group
// devices under section headers:
//
//	[dshow @ 0x1] DirectShow video devices (some may be both video and audio devices)
//	[dshow @ 0x1]  "Integrated Camera"
//	[dshow @ 0x1]     Alternative name "@device_pnp_\\?\usb#vid_04f2"
//	[dshow @ 0x1] DirectShow audio devices
//
// Newer builds tag each device instead:
//
//	[dshow @ 0x1] "Integrated Camera" (video)
//	[dshow @ 0x1]   Alternative name "@device_pnp_\\?\usb#vid_04f2"
//
// Output with neither a section header, a tagged device nor ffmpeg's
// "Could not enumerate" notice is an error, not an empty list.
func parseDShow(out []byte) ([]Device, error) {
	devices := []Device{}
	listed := false
	section := ""
	current := -1 // index into devices awaiting its alternative name

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := logPrefixRe.ReplaceAllString(strings.TrimSpace(sc.Text()), "")

		switch {
		case strings.HasPrefix(line, "DirectShow video devices"):
			section, current, listed = "video", -1, true
			continue
		case strings.HasPrefix(line, "DirectShow audio devices"):
			section, current, listed = "audio", -1, true
			continue
		case dshowNoneRe.MatchString(line):
			listed = true
			continue
		}

		if m := dshowAltRe.FindStringSubmatch(line); m != nil {
			if current >= 0 {
				devices[current].Path = m[1]
				current = -1
			}
			continue
		}

		m := dshowNameRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		kind := m[2]
		if kind == "" {
			kind = section
		} else {
			listed = true
		}
		if kind != "video" {
			current = -1
			continue
		}

		devices = append(devices, Device{Name: m[1], Path: m[1]})
		current = len(devices) - 1
	}
	if !listed {
		return nil, noDeviceList(out)
	}
	return dedupe(devices), nil
}
