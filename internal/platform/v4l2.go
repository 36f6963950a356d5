package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var videoNodeRe = regexp.MustCompile(`^video(\d+)$`)

// V4L2 enumerates /dev/videoN nodes through sysfs.
//
// UVC cameras register a second node per device that only carries metadata;
// sysfs marks it with index != 0 and it is skipped.
type V4L2 struct {
	SysfsRoot string
	DevRoot   string
}

// NewV4L2 returns an enumerator reading the real sysfs.
func NewV4L2() *V4L2 {
	return &V4L2{
		SysfsRoot: "/sys/class/video4linux",
		DevRoot:   "/dev",
	}
}

// InputFormat implements Enumerator.
func (v *V4L2) InputFormat() string { return FormatV4L2 }

// Enumerate implements Enumerator. A missing sysfs class directory means no
// devices, not an error.
func (v *V4L2) Enumerate(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(v.SysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Device{}, nil
		}
		return nil, fmt.Errorf("platform: read %s: %w", v.SysfsRoot, err)
	}

	type node struct {
		num int
		dev Device
	}
	nodes := make([]node, 0, len(entries))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := videoNodeRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		dir := filepath.Join(v.SysfsRoot, e.Name())

		if idx, ok := readAttr(dir, "index"); ok && idx != "0" {
			slog.Debug("platform: skipping secondary v4l2 node", "node", e.Name(), "index", idx)
			continue
		}

		name, ok := readAttr(dir, "name")
		if !ok || name == "" {
			name = "Video device " + m[1]
		}

		nodes = append(nodes, node{
			num: num,
			dev: Device{Name: name, Path: filepath.Join(v.DevRoot, e.Name())},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].num < nodes[j].num })

	devices := make([]Device, len(nodes))
	for i, n := range nodes {
		devices[i] = n.dev
	}
	return devices, nil
}

func readAttr(dir, attr string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}
