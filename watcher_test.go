package devicecapture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcher_InvalidInterval(t *testing.T) {
	w := NewDeviceWatcher(NewDeviceRegistry(&fakeEnumerator{}, InputFormatV4L2))

	for _, d := range []time.Duration{0, -time.Second} {
		if err := w.Start(d); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Start(%v) error = %v, want ErrInvalidInterval", d, err)
		}
	}
	if w.IsWatching() {
		t.Error("IsWatching() = true after failed Start")
	}
}

func TestWatcher_SyncsPeriodically(t *testing.T) {
	enum := &fakeEnumerator{}
	r := NewDeviceRegistry(enum, InputFormatV4L2)
	w := NewDeviceWatcher(r)

	var added atomic.Int32
	r.OnNewDevice(func(DeviceInfo) { added.Add(1) })

	enum.set(cam0)
	if err := w.Start(5 * time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if !w.IsWatching() {
		t.Error("IsWatching() = false after Start")
	}

	waitFor(t, 2*time.Second, "first device", func() bool { return len(r.Devices()) == 1 })

	enum.set(cam0, cam1)
	waitFor(t, 2*time.Second, "second device", func() bool { return len(r.Devices()) == 2 })

	if got := added.Load(); got != 2 {
		t.Errorf("OnNewDevice fired %d times, want 2", got)
	}
	if s := w.Stats(); s.Syncs == 0 || s.Ticks == 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestWatcher_RestartKeepsOneSchedule(t *testing.T) {
	enum := &fakeEnumerator{}
	w := NewDeviceWatcher(NewDeviceRegistry(enum, InputFormatV4L2))

	if err := w.Start(time.Hour); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(5 * time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, "old schedule to exit", func() bool { return w.loops.Load() == 1 })
	// Only the short interval can produce syncs this quickly
	waitFor(t, 2*time.Second, "syncs at the new interval", func() bool { return enum.callCount() >= 3 })

	if got := w.loops.Load(); got != 1 {
		t.Errorf("live schedules = %d, want 1", got)
	}
}

func TestWatcher_StopPreventsFurtherSyncs(t *testing.T) {
	enum := &fakeEnumerator{}
	w := NewDeviceWatcher(NewDeviceRegistry(enum, InputFormatV4L2))

	if err := w.Start(2 * time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, "a few syncs", func() bool { return enum.callCount() >= 3 })

	w.Stop()
	if w.IsWatching() {
		t.Error("IsWatching() = true after Stop")
	}
	atStop := enum.callCount()

	time.Sleep(30 * time.Millisecond)
	settled := enum.callCount()
	// A sync that passed its check before Stop may still enumerate once
	if settled > atStop+1 {
		t.Errorf("enumerations after Stop: %d -> %d", atStop, settled)
	}

	time.Sleep(30 * time.Millisecond)
	if got := enum.callCount(); got != settled {
		t.Errorf("watcher kept syncing after Stop: %d -> %d", settled, got)
	}
	waitFor(t, time.Second, "schedule goroutine to exit", func() bool { return w.loops.Load() == 0 })
}

func TestWatcher_StopIsSafeWhenIdle(t *testing.T) {
	w := NewDeviceWatcher(NewDeviceRegistry(&fakeEnumerator{}, InputFormatV4L2))
	w.Stop()
	w.Stop()
	if w.IsWatching() {
		t.Error("IsWatching() = true")
	}
}

func TestWatcher_SkipsTicksWhileSyncing(t *testing.T) {
	enum := &fakeEnumerator{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	w := NewDeviceWatcher(NewDeviceRegistry(enum, InputFormatV4L2))

	if err := w.Start(time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	select {
	case <-enum.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never started")
	}

	if _, _, err := w.SyncNow(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("SyncNow() during sync error = %v, want ErrSyncInProgress", err)
	}

	waitFor(t, 2*time.Second, "skipped ticks", func() bool { return w.Stats().SkippedTicks >= 3 })
	if got := enum.callCount(); got != 1 {
		t.Errorf("enumerations while blocked = %d, want 1", got)
	}

	stats := w.Stats()
	if stats.Ticks < 4 {
		t.Errorf("Ticks = %d, want the running tick plus the skipped ones", stats.Ticks)
	}
	if stats.Syncs != 1 {
		t.Errorf("Syncs = %d while blocked, want 1", stats.Syncs)
	}

	close(enum.block)
}

func TestWatcher_InFlightSyncAppliedAfterStop(t *testing.T) {
	enum := &fakeEnumerator{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	enum.set(cam0)
	r := NewDeviceRegistry(enum, InputFormatV4L2)
	w := NewDeviceWatcher(r)

	if err := w.Start(time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-enum.entered
	w.Stop()
	close(enum.block)

	waitFor(t, 2*time.Second, "in-flight result", func() bool { return len(r.Devices()) == 1 })
}

func TestWatcher_ErrorsAreReportedAndRetried(t *testing.T) {
	enum := &fakeEnumerator{}
	boom := errors.New("ffmpeg not found")
	enum.setErr(boom)

	r := NewDeviceRegistry(enum, InputFormatAVFoundation)
	var reported atomic.Int32
	w := NewDeviceWatcher(r, WithErrorHandler(func(err error) {
		if errors.Is(err, boom) {
			reported.Add(1)
		}
	}), WithSyncTimeout(time.Second))

	if err := w.Start(2 * time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, "error reports", func() bool { return reported.Load() >= 2 })

	enum.set(cam0)
	enum.setErr(nil)
	waitFor(t, 2*time.Second, "recovery", func() bool { return len(r.Devices()) == 1 })

	if w.Stats().Failures < 2 {
		t.Errorf("Failures = %d, want >= 2", w.Stats().Failures)
	}
}

func TestWatcher_HandlerPanicKeepsTicking(t *testing.T) {
	enum := &fakeEnumerator{}
	r := NewDeviceRegistry(enum, InputFormatV4L2)
	r.OnNewDevice(func(DeviceInfo) { panic("boom") })
	w := NewDeviceWatcher(r)

	enum.set(cam0)
	if err := w.Start(2 * time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, "first device", func() bool { return len(r.Devices()) == 1 })
	enum.set(cam0, cam1)
	waitFor(t, 2*time.Second, "second device", func() bool { return len(r.Devices()) == 2 })
}

func TestWatcher_SyncNow(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.set(cam0)
	w := NewDeviceWatcher(NewDeviceRegistry(enum, InputFormatV4L2))

	added, removed, err := w.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if len(added) != 1 || len(removed) != 0 {
		t.Errorf("SyncNow() = %v, %v", added, removed)
	}
	if w.Stats().Syncs != 1 {
		t.Errorf("Syncs = %d, want 1", w.Stats().Syncs)
	}
	if w.IsWatching() {
		t.Error("SyncNow must not start the schedule")
	}
}
