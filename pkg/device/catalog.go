package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Facing is the direction a camera points relative to the operator.
type Facing string

const (
	FacingFront   Facing = "front"
	FacingBack    Facing = "back"
	FacingUnknown Facing = "unknown"
)

func (f Facing) IsValid() bool {
	switch f {
	case FacingFront, FacingBack, FacingUnknown:
		return true
	default:
		return false
	}
}

type VideoDevice struct {
	ID     string
	Label  string
	Facing Facing
}

// Enumerator lists the video-input devices currently visible to the platform.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]VideoDevice, error)
}

// Catalog holds the last known device list and the operator's facing
// preference. Enumeration is advisory: a failed refresh keeps the previous
// list so capture can still proceed by device id or platform default.
type Catalog struct {
	mu      sync.Mutex
	enum    Enumerator
	devices []VideoDevice
	facing  Facing
}

func NewCatalog(enum Enumerator) *Catalog {
	return &Catalog{
		enum:   enum,
		facing: FacingBack,
	}
}

// Refresh replaces the device list wholesale. On enumeration failure the
// previous list is returned unchanged.
func (c *Catalog) Refresh(ctx context.Context) []VideoDevice {
	devices, err := c.enum.Enumerate(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		slog.Warn("device enumeration failed", "err", err)
		return append([]VideoDevice{}, c.devices...)
	}
	for i := range devices {
		devices[i].Facing = ClassifyFacing(devices[i].Label)
	}
	c.devices = devices
	return append([]VideoDevice{}, c.devices...)
}

func (c *Catalog) Devices() []VideoDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]VideoDevice{}, c.devices...)
}

func (c *Catalog) SetFacing(f Facing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facing = f
}

func (c *Catalog) PreferredFacing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

// ClassifyFacing infers a facing direction from a device label. Most
// single-camera scan terminals are rear-facing, so back is the default.
func ClassifyFacing(label string) Facing {
	l := strings.ToLower(label)
	for _, key := range []string{"front", "user", "face"} {
		if strings.Contains(l, key) {
			return FacingFront
		}
	}
	for _, key := range []string{"back", "rear", "environment"} {
		if strings.Contains(l, key) {
			return FacingBack
		}
	}
	return FacingBack
}

// PickForFacing chooses the device to capture from. A still-present
// preferredID wins over a facing match so that a hot-plug refresh never
// silently swaps the active camera; otherwise the first facing match wins,
// then the first device at all.
func PickForFacing(devices []VideoDevice, facing Facing, preferredID string) (VideoDevice, bool) {
	if len(devices) == 0 {
		return VideoDevice{}, false
	}
	if preferredID != "" {
		for _, d := range devices {
			if d.ID == preferredID {
				return d, true
			}
		}
	}
	for _, d := range devices {
		if d.Facing == facing {
			return d, true
		}
	}
	return devices[0], true
}
