package v4l

import (
	"fmt"
	"sync"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
)

type Device struct {
	id     string
	cam    source
	cb     hal.DeviceCallback
	h      hal.Handler
	warmup int

	// held while the stream is stopped or started, so Close cannot slip
	// between a session's check and its Start
	stream sync.Mutex

	lock     sync.Mutex
	session  *Session
	closed   bool
	autoMode bool
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) CreateCaptureSession(targets []hal.Target, cb hal.SessionCallback, h hal.Handler) error {
	if len(targets) == 0 {
		return hal.ErrNoTargets
	}
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return hal.ErrCameraClosed
	}
	prev := d.session
	s := &Session{dev: d, targets: targets}
	d.session = s
	d.lock.Unlock()

	go func() {
		if prev != nil {
			_ = prev.Close()
		}
		s.configure(cb, h)
	}()

	return nil
}

func (d *Device) Close() error {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return nil
	}
	d.closed = true
	s := d.session
	d.session = nil
	d.lock.Unlock()

	if s != nil {
		s.markClosed()
	}
	logger.Infof("camera %s closed", d.id)

	d.stream.Lock()
	defer d.stream.Unlock()
	return d.cam.Stop()
}

func (d *Device) isCurrent(s *Session) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return !d.closed && d.session == s
}

// useAuto switches the device controls to auto exposure and focus once.
func (d *Device) useAuto(mode hal.ControlMode) {
	if mode != hal.ControlModeAuto {
		return
	}
	d.lock.Lock()
	if d.autoMode {
		d.lock.Unlock()
		return
	}
	d.autoMode = true
	d.lock.Unlock()

	d.cam.UpdateSettings(camera.AutoSettings())
}

func (d *Device) disconnected(err error) {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}
	d.lock.Unlock()

	logger.Warnf("camera %s disconnected: %v", d.id, err)
	hal.Post(d.h, func() {
		if d.cb.OnDisconnected != nil {
			d.cb.OnDisconnected(d)
		}
	})
}

func streamSize(targets []hal.Target) hal.Size {
	var best hal.Size
	for _, t := range targets {
		if s := t.TargetSize(); s.Area() > best.Area() {
			best = s
		}
	}
	if best.Area() == 0 {
		return defaultStreamSize
	}
	return best
}

func (d *Device) String() string {
	return fmt.Sprintf("v4l(%s)", d.cam.DevName())
}
