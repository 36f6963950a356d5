package ffmpeg

import (
	"testing"

	"github.com/asticode/go-astiav"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    astiav.LogLevel
		wantErr bool
	}{
		{"", astiav.LogLevelWarning, false},
		{"warning", astiav.LogLevelWarning, false},
		{"WARN", astiav.LogLevelWarning, false},
		{"error", astiav.LogLevelError, false},
		{" debug ", astiav.LogLevelDebug, false},
		{"quiet", astiav.LogLevelQuiet, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLogLevel(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLogLevel(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenInput_UnknownFormat(t *testing.T) {
	b := New(Options{LogLevel: "quiet"})

	d, err := b.OpenInput("whatever", "no-such-format", nil)
	if err == nil {
		d.Close()
		t.Fatal("expected error for unknown input format")
	}
}

func TestOpenInput_MissingFile(t *testing.T) {
	b := New(Options{LogLevel: "quiet"})

	d, err := b.OpenInput("/definitely/not/a/real/file-12345.mkv", "", nil)
	if err == nil {
		d.Close()
		t.Fatal("expected error for missing file")
	}
}
