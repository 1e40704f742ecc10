// Package camerax is the high-level capture screen. It binds a preview and an
// image capture use case to its lifecycle and lets the camera controller deal
// with the device.
package camerax

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/looper"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/utils"
)

const Name = "camerax"

const (
	StateIdle               = "idle"
	StateAwaitingPermission = "awaiting_permission"
	StatePreviewing         = "previewing"
	StateCapturing          = "capturing"
	StateClosed             = "closed"
	StateDisabled           = "disabled"
)

var (
	DefaultPreviewSize = hal.Size{Width: 640, Height: 480}
	DefaultStillSize   = hal.Size{Width: 640, Height: 480}
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Device is what the controller runs on. *camera.Camera implements it.
type Device interface {
	camera.Source
	MaxSize() (width, height int, err error)
}

type Screen struct {
	device      Device
	deps        screen.Deps
	previewSize hal.Size
	executor    *looper.Looper
	surface     *hal.Surface

	mu    sync.Mutex
	state string

	// owned by the executor
	controller   *camera.Controller
	preview      *Preview
	imageCapture *ImageCapture
	requested    bool
	requestID    int
}

// New returns a screen over device. A zero previewSize means 640x480.
func New(device Device, deps screen.Deps, previewSize hal.Size) *Screen {
	if previewSize.Area() == 0 {
		previewSize = DefaultPreviewSize
	}
	return &Screen{
		device:      device,
		deps:        deps,
		previewSize: previewSize,
		executor:    looper.New(Name),
		state:       StateIdle,
	}
}

func (s *Screen) Name() string {
	return Name
}

func (s *Screen) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Screen) setState(state string) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()
	logger.Debugf("%s: %s -> %s", Name, old, state)
}

func (s *Screen) Create(surface *hal.Surface) {
	s.surface = surface
	surface.SetListener(func(*hal.Surface) {
		s.executor.Post(s.start)
	})
}

func (s *Screen) Resume() {
	s.executor.Start()
	if s.surface != nil && s.surface.IsAvailable() {
		s.executor.Post(s.start)
	}
}

// Pause unbinds the use cases, which stops the preview and closes the device.
func (s *Screen) Pause() {
	s.executor.Post(s.unbind)
	s.executor.QuitSafely()
}

func (s *Screen) Destroy() {
	if s.executor.Running() {
		s.Pause()
	}
	if s.surface != nil {
		s.surface.SetListener(nil)
	}
}

func (s *Screen) Capture(rotation hal.Rotation) error {
	if !rotation.Valid() {
		return fmt.Errorf("%w: %d", hal.ErrInvalidRotation, int(rotation))
	}
	if s.State() != StatePreviewing {
		return screen.ErrNotPreviewing
	}
	if !s.executor.Post(func() { s.takePicture(rotation) }) {
		return screen.ErrNotPreviewing
	}
	return nil
}

func (s *Screen) start() {
	switch s.State() {
	case StateIdle, StateClosed:
	default:
		logger.Debugf("%s: not starting in state %s", Name, s.State())
		return
	}
	if s.deps.Permissions.Check(screen.Required...) {
		s.bind()
		return
	}
	if s.requested {
		return
	}
	req, err := s.deps.Permissions.Request(screen.Required, func(granted bool) {
		s.executor.Post(func() { s.onPermissionResult(granted) })
	})
	if err != nil {
		logger.Errorf("%s: request permission: %s", Name, err)
		return
	}
	s.requested = true
	s.requestID = req.ID
	s.setState(StateAwaitingPermission)
}

func (s *Screen) onPermissionResult(granted bool) {
	if s.State() != StateAwaitingPermission {
		return
	}
	s.requestID = 0
	if !granted {
		s.setState(StateDisabled)
		s.deps.Notices.Show(Name, screen.MsgPermissionDenied, notice.Long)
		return
	}
	s.bind()
}

func (s *Screen) stillSize() hal.Size {
	w, h, err := s.device.MaxSize()
	if err != nil || w == 0 || h == 0 {
		if err != nil {
			logger.Warnf("%s: max size: %s", Name, err)
		}
		return DefaultStillSize
	}
	return hal.Size{Width: w, Height: h}
}

func (s *Screen) bind() {
	s.controller = camera.NewController(s.device)
	s.preview = NewPreview(s.surface, s.previewSize)
	s.imageCapture = NewImageCapture(s.stillSize())
	if err := s.preview.bind(s.controller); err != nil {
		logger.Errorf("%s: bind preview: %s", Name, err)
		s.controller = nil
		s.setState(StateClosed)
		return
	}
	logger.Infof("%s: bound preview %s, still %s", Name, s.previewSize, s.imageCapture.Size())
	s.setState(StatePreviewing)
}

func (s *Screen) unbind() {
	if s.State() == StateAwaitingPermission {
		s.deps.Permissions.Cancel(s.requestID)
		s.requestID = 0
		s.requested = false
	}
	if s.controller != nil {
		if err := s.preview.unbind(s.controller); err != nil {
			logger.Warnf("%s: unbind preview: %s", Name, err)
		}
		s.controller = nil
	}
	if s.State() != StateDisabled {
		s.setState(StateClosed)
	}
}

func (s *Screen) takePicture(rotation hal.Rotation) {
	if s.controller == nil || s.State() != StatePreviewing {
		return
	}
	s.setState(StateCapturing)
	s.imageCapture.SetTargetRotation(rotation)
	path := s.deps.Photos.NewPhotoPath()
	// already on the executor, so the capture runs inline
	s.imageCapture.TakePicture(s.controller, s.deps.Photos, path, nil, OnImageSavedCallback{
		OnImageSaved: func(res OutputFileResults) {
			logger.Infof("%s: saved %s, rotation %s", Name, res.Path, res.Rotation)
			s.deps.Notices.Show(Name, screen.MsgImageSaved, notice.Short)
		},
		OnError: func(err error) {
			logger.Errorf("%s: take picture: %s", Name, err)
			s.deps.Notices.Show(Name, err.Error(), notice.Long)
		},
	})
	if !s.controller.Previewing() {
		logger.Warnf("%s: preview did not resume after the capture", Name)
		s.setState(StateClosed)
		return
	}
	s.setState(StatePreviewing)
}
