// Package devicecapture exposes camera and video capture devices as a stream
// of decoded frames on top of a native decoding backend (FFmpeg through
// go-astiav, or GStreamer through go-gst).
//
// It has two halves:
//
//   - Device watching: a DeviceRegistry enumerates the platform's capture
//     devices (V4L2 on Linux, AVFoundation on macOS, DirectShow on Windows),
//     diffs each enumeration against the previous snapshot and fires
//     hot-plug handlers. A DeviceWatcher re-syncs the registry periodically.
//   - Decoding: a StreamDecoder opens a device, file or URL and runs a
//     non-blocking pull loop. Each call to TryDecodeNextFrame either returns
//     a frame, reports that none is ready yet, or reports the end of the
//     stream.
//
// # Quick Start
//
// Watch for cameras:
//
//	registry, err := devicecapture.NewPlatformRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry.OnNewDevice(func(d devicecapture.DeviceInfo) {
//	    log.Printf("camera connected: %s (%s)", d.Name, d.Path)
//	})
//	registry.OnLostDevice(func(d devicecapture.DeviceInfo) {
//	    log.Printf("camera disconnected: %s", d.Path)
//	})
//
//	watcher := devicecapture.NewDeviceWatcher(registry)
//	if err := watcher.Start(time.Second); err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
//
// Decode frames from the first camera:
//
//	info, err := registry.GetDevice(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	format := registry.InputFormat()
//	dec, err := devicecapture.NewStreamDecoder(format.SourceURL(info.Path), format, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	for {
//	    status, frame, err := dec.TryDecodeNextFrame()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    switch status {
//	    case devicecapture.NewFrame:
//	        process(frame) // valid until the next call, Clone() to keep it
//	    case devicecapture.NoFrameAvailable:
//	        time.Sleep(5 * time.Millisecond)
//	    case devicecapture.EndOfStream:
//	        return
//	    }
//	}
//
// Camera wraps the same loop with polling, statistics and a warm-up that
// measures the frame rate the device actually delivers.
//
// # Frame Ownership
//
// A StreamDecoder owns exactly one Frame and reuses it for every decoded
// picture, including its Data buffer. The *Frame returned by
// TryDecodeNextFrame is overwritten by the next call and released by Close.
//
// # Thread Safety
//
//   - DeviceRegistry: all methods are safe for concurrent use. Devices()
//     readers always see a complete snapshot.
//   - DeviceWatcher: Start, Stop, IsWatching, SyncNow and Stats are safe for
//     concurrent use. Hot-plug handlers run on the watcher's goroutine.
//   - StreamDecoder: not safe for concurrent use. Drive it from one goroutine.
//   - Camera: ReadFrame and Warmup from one goroutine; Stats from any.
//
// # Dependencies
//
// The FFmpeg backend needs the FFmpeg libraries (libavformat, libavcodec,
// libavdevice) at build and run time. The GStreamer backend needs GStreamer
// 1.x with the base and good plugin sets. On macOS and Windows device
// enumeration runs the ffmpeg binary with -list_devices.
package devicecapture
