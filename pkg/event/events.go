package event

import (
	"time"

	capture "github.com/mpoegel/turnstile/pkg/capture"
	device "github.com/mpoegel/turnstile/pkg/device"
	decode "github.com/mpoegel/turnstile/pkg/decode"
	scan "github.com/mpoegel/turnstile/pkg/scan"
	validate "github.com/mpoegel/turnstile/pkg/validate"
)

// Kind tags engine events emitted to host subscribers.
type Kind string

const (
	KindCameraState  Kind = "camera_state"
	KindDecoderReady Kind = "decoder_ready"
	KindDeviceChange Kind = "device_change"
	KindOutcome      Kind = "outcome"
)

// Event is the host-facing notification record. Fields beyond Kind, At and
// SessionID are set per kind.
type Event struct {
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
	SessionID string    `json:"session_id"`

	CameraState capture.State      `json:"camera_state,omitempty"`
	ErrorClass  capture.ErrorClass `json:"error_class,omitempty"`
	Decoder     decode.Kind        `json:"decoder,omitempty"`

	Code    string          `json:"code,omitempty"`
	Status  validate.Status `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EngineStatus is a point-in-time snapshot for the host to render.
type EngineStatus struct {
	SessionID   string               `json:"session_id"`
	CameraState capture.State        `json:"camera_state"`
	DeviceID    string               `json:"device_id"`
	Facing      device.Facing        `json:"facing"`
	LoopState   scan.State           `json:"loop_state"`
	Decoder     decode.Kind          `json:"decoder"`
	Devices     []device.VideoDevice `json:"devices"`
}
