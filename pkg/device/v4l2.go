package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSysfsDir = "/sys/class/video4linux"
	defaultDevDir   = "/dev"
)

// V4L2Enumerator lists video capture nodes from sysfs, falling back to a
// plain /dev glob when sysfs is unavailable. Labels come from the driver's
// sysfs name node.
type V4L2Enumerator struct {
	SysfsDir string
	DevDir   string
}

func NewV4L2Enumerator() *V4L2Enumerator {
	return &V4L2Enumerator{
		SysfsDir: defaultSysfsDir,
		DevDir:   defaultDevDir,
	}
}

func (e *V4L2Enumerator) Enumerate(ctx context.Context) ([]VideoDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(e.SysfsDir)
	if err != nil {
		return e.enumerateDevNodes()
	}

	devices := []VideoDevice{}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "video") {
			continue
		}
		node := filepath.Join(e.DevDir, entry.Name())
		if _, err := os.Stat(node); err != nil {
			continue
		}
		label := entry.Name()
		if raw, err := os.ReadFile(filepath.Join(e.SysfsDir, entry.Name(), "name")); err == nil {
			label = strings.TrimSpace(string(raw))
		}
		devices = append(devices, VideoDevice{ID: node, Label: label})
	}
	return devices, nil
}

func (e *V4L2Enumerator) enumerateDevNodes() ([]VideoDevice, error) {
	matches, err := filepath.Glob(filepath.Join(e.DevDir, "video*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list device nodes: %w", err)
	}
	devices := make([]VideoDevice, 0, len(matches))
	for _, node := range matches {
		devices = append(devices, VideoDevice{ID: node, Label: filepath.Base(node)})
	}
	return devices, nil
}
