package capture

import (
	device "github.com/mpoegel/turnstile/pkg/device"
)

const (
	DefaultIdealWidth  = 1280
	DefaultIdealHeight = 720
	DefaultMaxWidth    = 1920
	DefaultMaxHeight   = 1080
)

// Constraints is one level of a capture request: which device, and how big
// a frame to ask for. Zero values mean unconstrained.
type Constraints struct {
	DeviceID    string
	Facing      device.Facing
	IdealWidth  int
	IdealHeight int
	MaxWidth    int
	MaxHeight   int
}

// Ladder builds the four-level degradation ladder tried in order during
// Start: the exact chosen device with resolution hints, the facing-matched
// device with resolution hints, the facing-matched device bare, and finally
// a fully unconstrained request left to the platform default.
func Ladder(exactID, facingID string, facing device.Facing) []Constraints {
	ladder := []Constraints{}
	if exactID != "" {
		ladder = append(ladder, Constraints{
			DeviceID:    exactID,
			Facing:      facing,
			IdealWidth:  DefaultIdealWidth,
			IdealHeight: DefaultIdealHeight,
			MaxWidth:    DefaultMaxWidth,
			MaxHeight:   DefaultMaxHeight,
		})
	}
	if facingID != "" && facingID != exactID {
		ladder = append(ladder, Constraints{
			DeviceID:    facingID,
			Facing:      facing,
			IdealWidth:  DefaultIdealWidth,
			IdealHeight: DefaultIdealHeight,
			MaxWidth:    DefaultMaxWidth,
			MaxHeight:   DefaultMaxHeight,
		})
		ladder = append(ladder, Constraints{
			DeviceID: facingID,
			Facing:   facing,
		})
	} else if exactID != "" {
		ladder = append(ladder, Constraints{
			DeviceID: exactID,
			Facing:   facing,
		})
	}
	ladder = append(ladder, Constraints{})
	return ladder
}
