package devicecapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/devicecapture/internal/platform"
)

// Enumerator lists the capture devices currently present.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context) ([]DeviceInfo, error)

// Enumerate implements Enumerator.
func (f EnumeratorFunc) Enumerate(ctx context.Context) ([]DeviceInfo, error) { return f(ctx) }

// platformEnumerator converts internal platform devices to DeviceInfo.
type platformEnumerator struct {
	e platform.Enumerator
}

func (p platformEnumerator) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := p.e.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = DeviceInfo{Name: d.Name, Path: d.Path}
	}
	return infos, nil
}

// DeviceHandler is called with a device that appeared or disappeared.
type DeviceHandler func(DeviceInfo)

// DeviceRegistry holds the current device snapshot and fires hot-plug
// handlers when a sync changes it.
//
// The snapshot is an immutable slice behind an atomic pointer. A changing
// sync stores a new slice before any handler runs, so handlers (and any
// other goroutine) calling Devices see the post-sync view.
type DeviceRegistry struct {
	enum   Enumerator
	format InputFormat

	snapshot atomic.Pointer[[]DeviceInfo]
	syncMu   sync.Mutex // serializes enumerate+compare+store

	handlersMu sync.RWMutex
	onNew      []DeviceHandler
	onLost     []DeviceHandler
}

// NewDeviceRegistry creates a registry over enum. format is the device
// class the enumerated paths belong to. The snapshot starts empty.
func NewDeviceRegistry(enum Enumerator, format InputFormat) *DeviceRegistry {
	r := &DeviceRegistry{enum: enum, format: format}
	empty := []DeviceInfo{}
	r.snapshot.Store(&empty)
	return r
}

// NewPlatformRegistry creates a registry with the enumerator of the running
// platform.
func NewPlatformRegistry() (*DeviceRegistry, error) {
	e, err := platform.Default()
	if err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPlatform, err)
		}
		return nil, err
	}

	slog.Info("devicecapture: device registry created",
		"input_format", e.InputFormat(),
	)

	return NewDeviceRegistry(platformEnumerator{e: e}, InputFormat(e.InputFormat())), nil
}

// InputFormat reports the device class of the registry's devices.
func (r *DeviceRegistry) InputFormat() InputFormat { return r.format }

// Devices returns a copy of the current snapshot.
func (r *DeviceRegistry) Devices() []DeviceInfo {
	snap := *r.snapshot.Load()
	out := make([]DeviceInfo, len(snap))
	copy(out, snap)
	return out
}

// GetDevice returns the device at index in the current snapshot.
func (r *DeviceRegistry) GetDevice(index int) (DeviceInfo, error) {
	snap := *r.snapshot.Load()
	if index < 0 || index >= len(snap) {
		return DeviceInfo{}, fmt.Errorf("%w: index %d (have %d)", ErrDeviceNotFound, index, len(snap))
	}
	return snap[index], nil
}

// GetDeviceByPath returns the device with the given path.
func (r *DeviceRegistry) GetDeviceByPath(path string) (DeviceInfo, error) {
	for _, d := range *r.snapshot.Load() {
		if d.Path == path {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
}

// OnNewDevice registers a handler for devices that appear.
func (r *DeviceRegistry) OnNewDevice(fn DeviceHandler) {
	r.handlersMu.Lock()
	r.onNew = append(r.onNew, fn)
	r.handlersMu.Unlock()
}

// OnLostDevice registers a handler for devices that disappear.
func (r *DeviceRegistry) OnLostDevice(fn DeviceHandler) {
	r.handlersMu.Lock()
	r.onLost = append(r.onLost, fn)
	r.handlersMu.Unlock()
}

// Sync enumerates devices, replaces the snapshot if it changed and fires
// handlers for every added and removed device.
//
// An enumeration that matches the stored snapshot (in any order) fires
// nothing and leaves the stored slice untouched. An enumeration error is
// returned as is and leaves the registry unchanged. Duplicate paths in one
// enumeration keep their first occurrence.
func (r *DeviceRegistry) Sync(ctx context.Context) (added, removed []DeviceInfo, err error) {
	r.syncMu.Lock()

	devices, err := r.enum.Enumerate(ctx)
	if err != nil {
		r.syncMu.Unlock()
		return nil, nil, fmt.Errorf("devicecapture: enumerate devices: %w", err)
	}
	devices = dedupeByPath(devices)

	old := *r.snapshot.Load()
	if sameDevices(old, devices) {
		r.syncMu.Unlock()
		return nil, nil, nil
	}

	added, removed = Diff(old, devices)
	r.snapshot.Store(&devices)
	r.syncMu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		slog.Info("devicecapture: device set changed",
			"added", len(added),
			"removed", len(removed),
			"total", len(devices),
		)
	}

	// Handlers run outside syncMu so they may call back into the registry.
	r.handlersMu.RLock()
	onNew := append([]DeviceHandler(nil), r.onNew...)
	onLost := append([]DeviceHandler(nil), r.onLost...)
	r.handlersMu.RUnlock()

	for _, d := range added {
		for _, fn := range onNew {
			dispatch("new", fn, d)
		}
	}
	for _, d := range removed {
		for _, fn := range onLost {
			dispatch("lost", fn, d)
		}
	}

	return added, removed, nil
}

func dispatch(event string, fn DeviceHandler, d DeviceInfo) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("devicecapture: device handler panicked",
				"event", event,
				"path", d.Path,
				"panic", p,
			)
		}
	}()
	fn(d)
}

// Diff compares two device snapshots by Path. added holds the devices of
// next that are not in prev, removed the devices of prev that are not in
// next. Order follows the input slices.
func Diff(prev, next []DeviceInfo) (added, removed []DeviceInfo) {
	prevPaths := make(map[string]struct{}, len(prev))
	for _, d := range prev {
		prevPaths[d.Path] = struct{}{}
	}
	nextPaths := make(map[string]struct{}, len(next))
	for _, d := range next {
		nextPaths[d.Path] = struct{}{}
	}

	for _, d := range next {
		if _, ok := prevPaths[d.Path]; !ok {
			added = append(added, d)
		}
	}
	for _, d := range prev {
		if _, ok := nextPaths[d.Path]; !ok {
			removed = append(removed, d)
		}
	}
	return added, removed
}

// sameDevices reports whether a and b hold the same DeviceInfo values,
// ignoring order. Both are free of duplicate paths.
func sameDevices(a, b []DeviceInfo) bool {
	if len(a) != len(b) {
		return false
	}
	byPath := make(map[string]DeviceInfo, len(a))
	for _, d := range a {
		byPath[d.Path] = d
	}
	for _, d := range b {
		if prev, ok := byPath[d.Path]; !ok || prev != d {
			return false
		}
	}
	return true
}

func dedupeByPath(devices []DeviceInfo) []DeviceInfo {
	seen := make(map[string]struct{}, len(devices))
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.Path]; ok {
			continue
		}
		seen[d.Path] = struct{}{}
		out = append(out, d)
	}
	return out
}
