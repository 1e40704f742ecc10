// Package camera2 is the low-level capture screen. It drives a hal camera
// handle directly: it opens the device, configures capture sessions and
// issues repeating and one-shot requests, reacting to the callbacks the
// hardware layer posts back.
package camera2

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/looper"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/utils"
)

const Name = "camera2"

var (
	// DefaultPreviewSize is used when the device reports no preview sizes.
	DefaultPreviewSize = hal.Size{Width: 640, Height: 480}
	// DefaultStillSize is used when the device reports no JPEG sizes.
	DefaultStillSize = hal.Size{Width: 640, Height: 480}
)

var ErrNotRunning = errors.New("camera2: screen is not running")

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Screen struct {
	manager hal.Manager
	deps    screen.Deps
	looper  *looper.Looper
	state   *fsm.FSM
	surface *hal.Surface

	// owned by the looper goroutine
	chars       hal.Characteristics
	device      hal.Device
	session     hal.Session
	previewSize hal.Size
	requested   bool
	requestID   int
	// generation of the current open attempt
	openGen int
}

func New(manager hal.Manager, deps screen.Deps) *Screen {
	return &Screen{
		manager: manager,
		deps:    deps,
		looper:  looper.New(Name),
		state:   newStateMachine(),
	}
}

func (s *Screen) Name() string {
	return Name
}

func (s *Screen) State() string {
	return s.state.Current()
}

func (s *Screen) Create(surface *hal.Surface) {
	s.surface = surface
	surface.SetListener(func(*hal.Surface) {
		s.looper.Post(s.openCamera)
	})
}

func (s *Screen) Resume() {
	s.looper.Start()
	if s.surface != nil && s.surface.IsAvailable() {
		s.looper.Post(s.openCamera)
	}
}

// Pause closes the camera and stops the looper once queued callbacks ran.
func (s *Screen) Pause() {
	s.looper.Post(s.closeCamera)
	s.looper.QuitSafely()
}

func (s *Screen) Destroy() {
	if s.looper.Running() {
		s.Pause()
	}
	if s.surface != nil {
		s.surface.SetListener(nil)
	}
}

// Capture asks for a still at the given display rotation.
func (s *Screen) Capture(rotation hal.Rotation) error {
	orientation, err := JPEGOrientation(rotation)
	if err != nil {
		return err
	}
	if s.state.Current() != StatePreviewing {
		return screen.ErrNotPreviewing
	}
	if !s.looper.Post(func() { s.takePicture(orientation) }) {
		return ErrNotRunning
	}

	return nil
}

func (s *Screen) transition(event string) {
	if err := s.state.Event(context.Background(), event); err != nil {
		logger.Warnf("%s: %s in state %s: %s", Name, event, s.state.Current(), err)
	}
}

func (s *Screen) openCamera() {
	if !s.state.Can(evOpen) {
		logger.Debugf("%s: not opening camera in state %s", Name, s.state.Current())
		return
	}
	ids, err := s.manager.CameraIDs()
	if err == nil && len(ids) == 0 {
		err = hal.ErrNoCamera
	}
	if err != nil {
		logger.Errorf("%s: list cameras: %s", Name, err)
		return
	}
	chars, err := s.manager.Characteristics(ids[0])
	if err != nil {
		logger.Errorf("%s: camera %s characteristics: %s", Name, ids[0], err)
		return
	}
	s.chars = chars
	if sizes := chars.Sizes(hal.FormatPreview); len(sizes) > 0 {
		s.previewSize = sizes[0]
	} else {
		s.previewSize = DefaultPreviewSize
	}

	if !s.deps.Permissions.Check(screen.Required...) {
		s.requestPermission()
		return
	}
	s.transition(evOpen)
	s.connect()
}

func (s *Screen) requestPermission() {
	if s.requested {
		logger.Debugf("%s: permission already requested", Name)
		return
	}
	req, err := s.deps.Permissions.Request(screen.Required, func(granted bool) {
		s.looper.Post(func() { s.onPermissionResult(granted) })
	})
	if err != nil {
		logger.Errorf("%s: request permission: %s", Name, err)
		return
	}
	s.requested = true
	s.requestID = req.ID
	s.transition(evRequestPermission)
}

func (s *Screen) onPermissionResult(granted bool) {
	if s.state.Current() != StateAwaitingPermission {
		return
	}
	s.requestID = 0
	if !granted {
		s.transition(evDeny)
		s.deps.Notices.Show(Name, screen.MsgPermissionDenied, notice.Long)
		return
	}
	s.transition(evGrant)
	s.connect()
}

// connect opens the camera; the state is already opening.
func (s *Screen) connect() {
	s.openGen++
	gen := s.openGen
	cb := hal.DeviceCallback{
		OnOpened: func(d hal.Device) {
			s.onOpened(gen, d)
		},
		OnDisconnected: func(d hal.Device) {
			s.onError(gen, d, hal.ErrCameraClosed)
		},
		OnError: func(d hal.Device, err error) {
			s.onError(gen, d, err)
		},
	}
	if err := s.manager.OpenCamera(s.chars.ID, cb, s.looper); err != nil {
		logger.Errorf("%s: open camera %s: %s", Name, s.chars.ID, err)
		s.transition(evClose)
	}
}

func (s *Screen) onOpened(gen int, d hal.Device) {
	if gen != s.openGen || s.state.Current() != StateOpening || s.device != nil {
		logger.Debugf("%s: dropping stale camera %s", Name, d.ID())
		_ = d.Close()
		return
	}
	s.device = d
	logger.Infof("%s: camera %s opened", Name, d.ID())
	s.createPreviewSession()
}

func (s *Screen) onError(gen int, d hal.Device, err error) {
	_ = d.Close()
	if d != s.device {
		// a failed open reports a handle that was never recorded
		failedOpen := gen == s.openGen && s.device == nil && s.state.Current() == StateOpening
		if !failedOpen {
			logger.Debugf("%s: ignoring error of stale camera %s: %s", Name, d.ID(), err)
			return
		}
	}
	logger.Errorf("%s: camera %s: %s", Name, d.ID(), err)
	s.device = nil
	s.session = nil
	s.transition(evClose)
}

func (s *Screen) createPreviewSession() {
	dev := s.device
	if dev == nil {
		return
	}
	s.surface.SetDefaultBufferSize(s.previewSize)
	cb := hal.SessionCallback{
		OnConfigured: func(sess hal.Session) {
			s.onPreviewConfigured(dev, sess)
		},
		OnConfigureFailed: func(sess hal.Session, err error) {
			if dev != s.device {
				return
			}
			logger.Errorf("%s: configure preview session: %s", Name, err)
			s.deps.Notices.Show(Name, screen.MsgConfigurationChanged, notice.Long)
		},
	}
	if err := dev.CreateCaptureSession([]hal.Target{s.surface}, cb, s.looper); err != nil {
		logger.Errorf("%s: create preview session: %s", Name, err)
	}
}

func (s *Screen) onPreviewConfigured(dev hal.Device, sess hal.Session) {
	if dev != s.device {
		_ = sess.Close()
		return
	}
	s.session = sess
	req := hal.NewRequest(hal.TemplatePreview, s.surface)
	req.ControlMode = hal.ControlModeAuto
	if err := sess.SetRepeatingRequest(req, s.looper); err != nil {
		logger.Errorf("%s: start preview: %s", Name, err)
		return
	}
	if s.state.Current() != StatePreviewing {
		s.transition(evPreview)
	}
}

func (s *Screen) stillSize() hal.Size {
	if sizes := s.chars.Sizes(hal.FormatJPEG); len(sizes) > 0 {
		return sizes[0]
	}
	return DefaultStillSize
}

func (s *Screen) takePicture(orientation int) {
	dev := s.device
	if dev == nil || !s.state.Can(evCapture) {
		logger.Warnf("%s: capture ignored in state %s", Name, s.state.Current())
		return
	}

	reader := hal.NewImageReader(s.stillSize(), hal.FormatJPEG, 1)
	file := s.deps.Photos.NewPhotoPath()
	s.deps.Notices.Show(Name, file, notice.Short)
	reader.SetOnImageAvailableListener(func(r *hal.ImageReader) {
		s.saveImage(r, file)
	}, s.looper)

	req := hal.NewRequest(hal.TemplateStillCapture, reader)
	req.ControlMode = hal.ControlModeAuto
	req.JPEGOrientation = orientation

	cb := hal.SessionCallback{
		OnConfigured: func(sess hal.Session) {
			s.onStillConfigured(dev, sess, req)
		},
		OnConfigureFailed: func(sess hal.Session, err error) {
			if dev != s.device {
				return
			}
			logger.Errorf("%s: configure still session: %s", Name, err)
			reader.Close()
			s.createPreviewSession()
		},
	}
	if err := dev.CreateCaptureSession([]hal.Target{reader, s.surface}, cb, s.looper); err != nil {
		logger.Errorf("%s: create still session: %s", Name, err)
		reader.Close()
		return
	}
	s.transition(evCapture)
}

func (s *Screen) onStillConfigured(dev hal.Device, sess hal.Session, req hal.CaptureRequest) {
	if dev != s.device {
		_ = sess.Close()
		return
	}
	s.session = sess
	cb := hal.CaptureCallback{
		OnCaptureCompleted: func(_ hal.Session, res hal.CaptureResult) {
			if dev != s.device {
				return
			}
			logger.Infof("%s: capture completed, %d bytes", Name, res.FrameSize)
			s.deps.Notices.Show(Name, screen.MsgImageSaved, notice.Long)
			s.createPreviewSession()
		},
		OnCaptureFailed: func(_ hal.Session, err error) {
			if dev != s.device {
				return
			}
			logger.Errorf("%s: capture failed: %s", Name, err)
			s.createPreviewSession()
		},
	}
	if err := sess.Capture(req, cb, s.looper); err != nil {
		logger.Errorf("%s: capture: %s", Name, err)
		s.createPreviewSession()
	}
}

// saveImage writes the latest image of r to file. The image is released
// whatever the outcome; a failed write is only logged.
func (s *Screen) saveImage(r *hal.ImageReader, file string) {
	img, err := r.AcquireLatestImage()
	if err != nil {
		logger.Warnf("%s: acquire image: %s", Name, err)
		return
	}
	defer img.Close()

	if err := s.deps.Photos.Save(file, img.Bytes()); err != nil {
		logger.Errorf("%s: save %s: %s", Name, file, err)
		return
	}
	logger.Infof("%s: saved %s, taken at %s", Name, file, img.Timestamp().Format(time.RFC3339))
}

func (s *Screen) closeCamera() {
	if s.state.Current() == StateAwaitingPermission {
		s.deps.Permissions.Cancel(s.requestID)
		s.requestID = 0
		s.requested = false
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			logger.Warnf("%s: close camera: %s", Name, err)
		}
		s.device = nil
		s.session = nil
	}
	s.openGen++
	if s.state.Can(evClose) {
		s.transition(evClose)
	}
}
