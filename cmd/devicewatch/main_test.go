package main

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/e7canasta/devicecapture/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LogConfig
		debug bool
		want  slog.Level
	}{
		{"info default", config.LogConfig{Level: "info"}, false, slog.LevelInfo},
		{"warn", config.LogConfig{Level: "warn"}, false, slog.LevelWarn},
		{"error json", config.LogConfig{Level: "error", Format: "json"}, false, slog.LevelError},
		{"debug flag wins", config.LogConfig{Level: "error"}, true, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLogger(tt.cfg, tt.debug)
			ctx := context.Background()
			if !l.Enabled(ctx, tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && l.Enabled(ctx, tt.want-1) {
				t.Errorf("level below %v enabled", tt.want)
			}
		})
	}
}

func TestWaitForShutdown_WaitsForCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)
	var closed atomic.Bool

	go func() {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond) // camera teardown
		closed.Store(true)
		errChan <- nil
	}()

	sigChan <- syscall.SIGTERM
	waitForShutdown(sigChan, errChan, cancel, true)

	if !closed.Load() {
		t.Error("returned before the capture finished")
	}
}

func TestWaitForShutdown_WithoutCapture(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	sigChan <- syscall.SIGINT

	done := make(chan struct{})
	go func() {
		waitForShutdown(sigChan, make(chan error), cancel, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForShutdown blocked without a capture")
	}
}
