// Package platform enumerates video capture devices on the host.
//
// One Enumerator variant exists per device class: V4L2 on Linux,
// AVFoundation on macOS and DirectShow on Windows. Detect picks the variant
// for a GOOS once at startup. The AVFoundation and DirectShow variants parse
// FFmpeg's -list_devices diagnostic output, which is not a stable interface;
// the parsers are tolerant of unknown lines but fail when no listing is
// present, so a broken ffmpeg never reads as "every device unplugged".
package platform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Device classes, named after the FFmpeg input formats that open them.
const (
	FormatV4L2         = "v4l2"
	FormatAVFoundation = "avfoundation"
	FormatDShow        = "dshow"
)

var (
	// ErrUnsupported is returned by Detect for platforms without an enumerator.
	ErrUnsupported = errors.New("platform: no device enumerator for this platform")

	// ErrNoDeviceList is returned when ffmpeg output carries no device
	// listing at all (input format missing from the build, open failure).
	// An empty list is only reported when ffmpeg says so.
	ErrNoDeviceList = errors.New("platform: no device list in ffmpeg output")
)

// Device is one enumerated capture device. Path is its stable identity.
type Device struct {
	Name string
	Path string
}

// Enumerator lists the capture devices currently present.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Device, error)
	// InputFormat names the device class the enumerated paths belong to.
	InputFormat() string
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
//
// ffmpeg exits non-zero after printing a device list (no output file was
// given), so an exit error that still produced output is not a failure.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) > 0 {
			return out, nil
		}
		return out, fmt.Errorf("platform: %s failed: %w", name, err)
	}
	return out, nil
}

// Detect returns the enumerator for goos.
func Detect(goos string) (Enumerator, error) {
	switch goos {
	case "linux":
		return NewV4L2(), nil
	case "darwin":
		return NewAVFoundation("", nil), nil
	case "windows":
		return NewDShow("", nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// Default returns the enumerator for the running platform.
func Default() (Enumerator, error) {
	return Detect(runtime.GOOS)
}

// SourceURL builds the locator a backend opens for a device path.
func SourceURL(format, path string) string {
	if format == FormatDShow {
		return "video=" + path
	}
	return path
}

// dedupe keeps the first occurrence of each path.
// noDeviceList wraps ErrNoDeviceList with the first line ffmpeg printed.
func noDeviceList(out []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return fmt.Errorf("%w: %s", ErrNoDeviceList, line)
		}
	}
	return fmt.Errorf("%w: empty output", ErrNoDeviceList)
}

func dedupe(devices []Device) []Device {
	seen := make(map[string]struct{}, len(devices))
	out := devices[:0]
	for _, d := range devices {
		if _, ok := seen[d.Path]; ok {
			continue
		}
		seen[d.Path] = struct{}{}
		out = append(out, d)
	}
	return out
}
