package devicecapture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSyncTimeout bounds a single scheduled sync.
const DefaultSyncTimeout = 5 * time.Second

// WatcherStats contains DeviceWatcher counters.
type WatcherStats struct {
	// Ticks is the number of schedule ticks observed
	Ticks uint64
	// Syncs is the number of syncs that ran (scheduled and SyncNow)
	Syncs uint64
	// SkippedTicks counts ticks dropped because a sync was still running
	SkippedTicks uint64
	// Failures counts syncs that returned an error
	Failures uint64
}

// WatcherOption configures a DeviceWatcher.
type WatcherOption func(*DeviceWatcher)

// WithSyncTimeout bounds each scheduled sync. Default: DefaultSyncTimeout.
func WithSyncTimeout(d time.Duration) WatcherOption {
	return func(w *DeviceWatcher) {
		if d > 0 {
			w.syncTimeout = d
		}
	}
}

// WithErrorHandler registers a hook called with every sync error.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *DeviceWatcher) { w.onError = fn }
}

// DeviceWatcher re-syncs a DeviceRegistry on a fixed interval.
//
// At most one schedule is live: Start while watching replaces the schedule.
// Syncs are single-flight; a tick that arrives while a sync runs is skipped.
// Handlers fired by a scheduled sync run on a watcher-owned goroutine.
type DeviceWatcher struct {
	registry    *DeviceRegistry
	syncTimeout time.Duration
	onError     func(error)

	mu   sync.Mutex
	gen  uint64 // bumped by Start and Stop; a loop only syncs for its own gen
	stop chan struct{}

	syncing  atomic.Bool
	watching atomic.Bool
	loops    atomic.Int32 // live schedule goroutines

	ticks    atomic.Uint64
	syncs    atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
}

// NewDeviceWatcher creates a stopped watcher for registry.
func NewDeviceWatcher(registry *DeviceRegistry, opts ...WatcherOption) *DeviceWatcher {
	w := &DeviceWatcher{
		registry:    registry,
		syncTimeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start schedules a sync every interval. Calling Start while watching
// replaces the previous schedule.
func (w *DeviceWatcher) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		close(w.stop)
	}
	w.gen++
	w.stop = make(chan struct{})
	w.watching.Store(true)

	go w.loop(w.gen, interval, w.stop)

	slog.Info("devicecapture: device watcher started", "interval", interval)
	return nil
}

// Stop cancels the schedule. Once Stop returns no new scheduled sync
// starts; a sync already running completes and its result is applied.
// Safe to call when not watching.
func (w *DeviceWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop == nil {
		return
	}
	close(w.stop)
	w.stop = nil
	w.gen++
	w.watching.Store(false)

	slog.Info("devicecapture: device watcher stopped",
		"ticks", w.ticks.Load(),
		"syncs", w.syncs.Load(),
		"skipped_ticks", w.skipped.Load(),
	)
}

// IsWatching reports whether a schedule is live.
func (w *DeviceWatcher) IsWatching() bool {
	return w.watching.Load()
}

// SyncNow runs one sync immediately through the single-flight guard. It
// returns ErrSyncInProgress if a sync is already running.
func (w *DeviceWatcher) SyncNow(ctx context.Context) (added, removed []DeviceInfo, err error) {
	if !w.syncing.CompareAndSwap(false, true) {
		return nil, nil, ErrSyncInProgress
	}
	defer w.syncing.Store(false)

	return w.runSync(ctx)
}

// Stats returns a snapshot of the watcher counters.
func (w *DeviceWatcher) Stats() WatcherStats {
	return WatcherStats{
		Ticks:        w.ticks.Load(),
		Syncs:        w.syncs.Load(),
		SkippedTicks: w.skipped.Load(),
		Failures:     w.failures.Load(),
	}
}

func (w *DeviceWatcher) loop(gen uint64, interval time.Duration, stop <-chan struct{}) {
	w.loops.Add(1)
	defer w.loops.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A tick that lands while a sync runs must reach the
			// single-flight guard to be counted, so ticks never block the
			// schedule.
			go w.tick(gen)
		}
	}
}

func (w *DeviceWatcher) tick(gen uint64) {
	w.ticks.Add(1)

	// Checking gen under mu makes Stop a hard barrier for new syncs.
	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	acquired := w.syncing.CompareAndSwap(false, true)
	w.mu.Unlock()

	if !acquired {
		w.skipped.Add(1)
		slog.Debug("devicecapture: sync still running, tick skipped")
		return
	}
	defer w.syncing.Store(false)

	// Not derived from the schedule: Stop must not abort a running sync.
	ctx, cancel := context.WithTimeout(context.Background(), w.syncTimeout)
	defer cancel()

	w.runSync(ctx)
}

func (w *DeviceWatcher) runSync(ctx context.Context) (added, removed []DeviceInfo, err error) {
	w.syncs.Add(1)

	added, removed, err = w.registry.Sync(ctx)
	if err != nil {
		w.failures.Add(1)
		slog.Warn("devicecapture: device sync failed, will retry on next tick",
			"error", err,
		)
		if w.onError != nil {
			w.reportError(err)
		}
	}
	return added, removed, err
}

func (w *DeviceWatcher) reportError(err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("devicecapture: error handler panicked", "panic", p)
		}
	}()
	w.onError(err)
}
