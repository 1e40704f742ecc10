// Package haltest provides a recording in-memory hal implementation.
package haltest

import (
	"errors"
	"sync"

	"twin-shutter/pkg/hal"
)

var ErrInjected = errors.New("injected failure")

// Manager opens fake devices. Callbacks are posted to the caller's handler,
// so tests observe the same threading as with real hardware.
type Manager struct {
	IDs   []string
	Sizes map[hal.Format][]hal.Size

	// OpenErr is returned synchronously by OpenCamera.
	OpenErr error
	// OpenFailure is reported through DeviceCallback.OnError.
	OpenFailure error
	// FailConfigure lists the session numbers (1-based, per device) whose
	// configuration fails.
	FailConfigure map[int]bool
	// Frame is the encoded still delivered to image readers.
	Frame []byte
	// CompletionFirst posts OnCaptureCompleted before the image is delivered.
	CompletionFirst bool
	// HoldCaptures keeps captures pending until Session.Release is called.
	HoldCaptures bool

	mu      sync.Mutex
	opens   int
	devices []*Device
}

func NewManager(sizes map[hal.Format][]hal.Size) *Manager {
	return &Manager{
		IDs:   []string{"0"},
		Sizes: sizes,
		Frame: []byte{0xff, 0xd8, 0xff, 0xd9},
	}
}

func (m *Manager) CameraIDs() ([]string, error) {
	if len(m.IDs) == 0 {
		return nil, hal.ErrNoCamera
	}
	return m.IDs, nil
}

func (m *Manager) Characteristics(id string) (hal.Characteristics, error) {
	return hal.Characteristics{ID: id, OutputSizes: m.Sizes}, nil
}

func (m *Manager) OpenCamera(id string, cb hal.DeviceCallback, h hal.Handler) error {
	m.mu.Lock()
	m.opens++
	if m.OpenErr != nil {
		m.mu.Unlock()
		return m.OpenErr
	}
	d := &Device{id: id, mgr: m, cb: cb, h: h}
	m.devices = append(m.devices, d)
	failure := m.OpenFailure
	m.mu.Unlock()

	hal.Post(h, func() {
		if failure != nil {
			cb.OnError(d, failure)
			return
		}
		cb.OnOpened(d)
	})

	return nil
}

// Opens counts OpenCamera calls.
func (m *Manager) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// LastDevice returns the most recently opened device, or nil.
func (m *Manager) LastDevice() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.devices) == 0 {
		return nil
	}
	return m.devices[len(m.devices)-1]
}

func (m *Manager) failConfigure(n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailConfigure[n]
}

type Device struct {
	id  string
	mgr *Manager
	cb  hal.DeviceCallback
	h   hal.Handler

	mu       sync.Mutex
	closed   bool
	sessions []*Session
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) CreateCaptureSession(targets []hal.Target, cb hal.SessionCallback, h hal.Handler) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return hal.ErrCameraClosed
	}
	if n := len(d.sessions); n > 0 {
		d.sessions[n-1].Close()
	}
	s := &Session{dev: d, targets: targets}
	d.sessions = append(d.sessions, s)
	n := len(d.sessions)
	d.mu.Unlock()

	fail := d.mgr.failConfigure(n)
	hal.Post(h, func() {
		if fail {
			cb.OnConfigureFailed(s, ErrInjected)
			return
		}
		cb.OnConfigured(s)
	})

	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for _, s := range d.sessions {
		s.Close()
	}
	return nil
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Disconnect reports a disconnect through the device callback.
func (d *Device) Disconnect() {
	hal.Post(d.h, func() { d.cb.OnDisconnected(d) })
}

// Fail reports a device error through the device callback.
func (d *Device) Fail(err error) {
	hal.Post(d.h, func() { d.cb.OnError(d, err) })
}

type Session struct {
	dev     *Device
	targets []hal.Target

	mu        sync.Mutex
	closed    bool
	repeating []hal.CaptureRequest
	captures  []hal.CaptureRequest
	pending   []func()
}

func (s *Session) Device() hal.Device {
	return s.dev
}

func (s *Session) Targets() []hal.Target {
	return s.targets
}

func (s *Session) SetRepeatingRequest(req hal.CaptureRequest, h hal.Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hal.ErrSessionClosed
	}
	s.repeating = append(s.repeating, req)
	return nil
}

func (s *Session) Capture(req hal.CaptureRequest, cb hal.CaptureCallback, h hal.Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return hal.ErrSessionClosed
	}
	s.captures = append(s.captures, req)
	deliver := func() { s.deliver(req, cb, h) }
	if s.dev.mgr.HoldCaptures {
		s.pending = append(s.pending, deliver)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	deliver()
	return nil
}

// Release delivers captures held back by Manager.HoldCaptures.
func (s *Session) Release() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (s *Session) deliver(req hal.CaptureRequest, cb hal.CaptureCallback, h hal.Handler) {
	frame := append([]byte(nil), s.dev.mgr.Frame...)
	result := hal.CaptureResult{Request: req, FrameSize: len(frame)}
	complete := func() {
		hal.Post(h, func() {
			if cb.OnCaptureCompleted != nil {
				cb.OnCaptureCompleted(s, result)
			}
		})
	}
	if s.dev.mgr.CompletionFirst {
		complete()
	}
	for _, t := range req.Targets {
		if r, ok := t.(*hal.ImageReader); ok {
			r.Deliver(frame, req.JPEGOrientation)
		}
	}
	if !s.dev.mgr.CompletionFirst {
		complete()
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) RepeatingRequests() []hal.CaptureRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hal.CaptureRequest(nil), s.repeating...)
}

func (s *Session) Captures() []hal.CaptureRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hal.CaptureRequest(nil), s.captures...)
}
