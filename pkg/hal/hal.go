// Package hal describes the low-level camera API the camera2 screen drives:
// a manager that opens camera handles, handles that configure capture
// sessions, and sessions that run repeating and one-shot capture requests.
//
// Every asynchronous result is delivered as a callback posted to the Handler
// the caller passed in, never on the caller's goroutine.
package hal

import (
	"errors"
	"fmt"
)

var (
	ErrCameraClosed  = errors.New("camera device closed")
	ErrSessionClosed = errors.New("capture session closed")
	ErrNoCamera      = errors.New("no camera available")
	ErrNoTargets     = errors.New("capture request has no targets")
)

// Handler runs callbacks. looper.Looper satisfies it.
type Handler interface {
	Post(fn func()) bool
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s Size) Area() int {
	return s.Width * s.Height
}

type Format int

const (
	// FormatJPEG is the still-capture output format.
	FormatJPEG Format = iota + 1
	// FormatPreview is whatever the preview surface consumes.
	FormatPreview
)

type Template int

const (
	TemplatePreview Template = iota + 1
	TemplateStillCapture
)

func (t Template) String() string {
	switch t {
	case TemplatePreview:
		return "preview"
	case TemplateStillCapture:
		return "still_capture"
	default:
		return fmt.Sprintf("template(%d)", int(t))
	}
}

type ControlMode int

const (
	ControlModeOff ControlMode = iota
	// ControlModeAuto lets the device run auto exposure and auto focus.
	ControlModeAuto
)

// Target is an output a session can write to: a *Surface or an *ImageReader.
type Target interface {
	TargetSize() Size
}

type CaptureRequest struct {
	Template        Template
	Targets         []Target
	ControlMode     ControlMode
	JPEGOrientation int
}

// NewRequest returns a request for template with the auto control mode off.
func NewRequest(t Template, targets ...Target) CaptureRequest {
	return CaptureRequest{Template: t, Targets: targets}
}

func (r CaptureRequest) Validate() error {
	if len(r.Targets) == 0 {
		return ErrNoTargets
	}
	return nil
}

// CaptureResult is the metadata of a finished capture.
type CaptureResult struct {
	Request   CaptureRequest
	FrameSize int
}

type Characteristics struct {
	ID          string
	OutputSizes map[Format][]Size
}

// Sizes returns the sizes reported for f, best first. It may be empty.
func (c Characteristics) Sizes(f Format) []Size {
	if c.OutputSizes == nil {
		return nil
	}
	return c.OutputSizes[f]
}

type DeviceCallback struct {
	OnOpened       func(Device)
	OnDisconnected func(Device)
	OnError        func(Device, error)
}

type SessionCallback struct {
	OnConfigured      func(Session)
	OnConfigureFailed func(Session, error)
}

type CaptureCallback struct {
	OnCaptureCompleted func(Session, CaptureResult)
	OnCaptureFailed    func(Session, error)
}

type Manager interface {
	CameraIDs() ([]string, error)
	Characteristics(id string) (Characteristics, error)
	// OpenCamera connects to camera id; the outcome arrives through cb on h.
	OpenCamera(id string, cb DeviceCallback, h Handler) error
}

type Device interface {
	ID() string
	// CreateCaptureSession binds the device to targets. Any previous session
	// of the device is closed first. The outcome arrives through cb on h.
	CreateCaptureSession(targets []Target, cb SessionCallback, h Handler) error
	Close() error
}

type Session interface {
	Device() Device
	// SetRepeatingRequest streams frames into the request's surfaces until the
	// session is closed or replaced.
	SetRepeatingRequest(req CaptureRequest, h Handler) error
	// Capture takes a single frame. Image readers among the targets receive
	// the image; cb receives the metadata. The two arrive independently.
	Capture(req CaptureRequest, cb CaptureCallback, h Handler) error
	Close() error
}

// Post delivers a callback on h. A nil handler runs fn inline. It returns
// false when h refused the callback.
func Post(h Handler, fn func()) bool {
	if h == nil {
		fn()
		return true
	}
	return h.Post(fn)
}
