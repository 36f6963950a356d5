package platform

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"
)

// AVFoundation enumerates macOS video devices by asking ffmpeg to list them.
// Device paths are the AVFoundation indices ffmpeg prints.
type AVFoundation struct {
	FFmpegPath string
	Run        CommandRunner
}

// NewAVFoundation returns an enumerator. Empty ffmpegPath means "ffmpeg"
// from PATH; nil run means ExecRunner.
func NewAVFoundation(ffmpegPath string, run CommandRunner) *AVFoundation {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if run == nil {
		run = ExecRunner
	}
	return &AVFoundation{FFmpegPath: ffmpegPath, Run: run}
}

// InputFormat implements Enumerator.
func (a *AVFoundation) InputFormat() string { return FormatAVFoundation }

// Enumerate implements Enumerator.
func (a *AVFoundation) Enumerate(ctx context.Context) ([]Device, error) {
	out, err := a.Run(ctx, a.FFmpegPath,
		"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	if err != nil {
		return nil, err
	}
	return parseAVFoundation(out)
}

var (
	logPrefixRe = regexp.MustCompile(`^\[[^\]]+@ ?[^\]]*\]\s*`)
	avfDeviceRe = regexp.MustCompile(`^\[(\d+)\]\s+(.+)$`)
)

// parseAVFoundation reads the "AVFoundation video devices:" section:
//
//	[AVFoundation indev @ 0x7f9] AVFoundation video devices:
//	[AVFoundation indev @ 0x7f9] [0] FaceTime HD Camera
//	[AVFoundation indev @ 0x7f9] AVFoundation audio devices:
//
// Output without the video header is an error, not an empty list.
func parseAVFoundation(out []byte) ([]Device, error) {
	devices := []Device{}
	inVideo, listed := false, false

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := logPrefixRe.ReplaceAllString(strings.TrimSpace(sc.Text()), "")

		switch {
		case strings.Contains(line, "video devices:"):
			inVideo, listed = true, true
			continue
		case strings.Contains(line, "audio devices:"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}

		if m := avfDeviceRe.FindStringSubmatch(line); m != nil {
			devices = append(devices, Device{Name: strings.TrimSpace(m[2]), Path: m[1]})
		}
	}
	if !listed {
		return nil, noDeviceList(out)
	}
	return dedupe(devices), nil
}
