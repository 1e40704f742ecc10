package v4l

import (
	"errors"
	"sync"

	"twin-shutter/pkg/hal"
)

type pendingCapture struct {
	req hal.CaptureRequest
	cb  hal.CaptureCallback
	h   hal.Handler
}

type Session struct {
	dev     *Device
	targets []hal.Target

	lock      sync.Mutex
	repeating *hal.CaptureRequest
	captures  []pendingCapture
	closed    bool
	frames    int
}

func (s *Session) Device() hal.Device {
	return s.dev
}

func (s *Session) configure(cb hal.SessionCallback, h hal.Handler) {
	d := s.dev
	d.stream.Lock()
	if !d.isCurrent(s) {
		d.stream.Unlock()
		return
	}
	_ = d.cam.Stop()
	size := streamSize(s.targets)
	frames, err := d.cam.Start(size.Width, size.Height)
	if err == nil && !d.isCurrent(s) {
		// closed or replaced while the stream was starting
		go drain(frames)
		_ = d.cam.Stop()
		d.stream.Unlock()
		return
	}
	d.stream.Unlock()

	if err != nil {
		logger.Errorf("configure session on %s at %s: %s", d.id, size, err)
		hal.Post(h, func() {
			if cb.OnConfigureFailed != nil {
				cb.OnConfigureFailed(s, err)
			}
		})
		return
	}
	go s.run(frames)

	hal.Post(h, func() {
		if cb.OnConfigured != nil {
			cb.OnConfigured(s)
		}
	})
}

func (s *Session) SetRepeatingRequest(req hal.CaptureRequest, h hal.Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return hal.ErrSessionClosed
	}
	s.repeating = &req
	s.lock.Unlock()

	s.dev.useAuto(req.ControlMode)

	return nil
}

func (s *Session) Capture(req hal.CaptureRequest, cb hal.CaptureCallback, h hal.Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return hal.ErrSessionClosed
	}
	s.captures = append(s.captures, pendingCapture{req: req, cb: cb, h: h})
	s.lock.Unlock()

	s.dev.useAuto(req.ControlMode)

	return nil
}

// Close stops the stream if this session still owns the device.
func (s *Session) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.dev.stream.Lock()
	defer s.dev.stream.Unlock()
	if s.dev.isCurrent(s) {
		return s.dev.cam.Stop()
	}
	return nil
}

func (s *Session) markClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// run fans frames out to the repeating request and pending captures. It reads
// until the stream ends, even once the session is closed: the producer blocks
// on every frame and only notices the stop between sends.
func (s *Session) run(frames <-chan []byte) {
	for frame := range frames {
		s.lock.Lock()
		if s.closed {
			s.lock.Unlock()
			continue
		}
		s.frames++
		rep := s.repeating
		var caps []pendingCapture
		if s.frames > s.dev.warmup && len(s.captures) > 0 {
			caps = s.captures
			s.captures = nil
		}
		s.lock.Unlock()

		if rep != nil {
			for _, t := range rep.Targets {
				if surface, ok := t.(*hal.Surface); ok {
					surface.Offer(frame)
				}
			}
		}
		for _, c := range caps {
			s.complete(c, frame)
		}
	}

	if !s.isClosed() && s.dev.isCurrent(s) {
		s.failPending(errors.New("stream ended"))
		s.dev.disconnected(errors.New("frame stream closed"))
	}
}

func (s *Session) complete(c pendingCapture, frame []byte) {
	for _, t := range c.req.Targets {
		switch target := t.(type) {
		case *hal.ImageReader:
			if !target.Deliver(append([]byte(nil), frame...), c.req.JPEGOrientation) {
				logger.Warnf("image reader full, frame dropped")
			}
		case *hal.Surface:
			target.Offer(frame)
		}
	}
	result := hal.CaptureResult{Request: c.req, FrameSize: len(frame)}
	hal.Post(c.h, func() {
		if c.cb.OnCaptureCompleted != nil {
			c.cb.OnCaptureCompleted(s, result)
		}
	})
}

func (s *Session) failPending(err error) {
	s.lock.Lock()
	caps := s.captures
	s.captures = nil
	s.lock.Unlock()

	for _, c := range caps {
		c := c
		hal.Post(c.h, func() {
			if c.cb.OnCaptureFailed != nil {
				c.cb.OnCaptureFailed(s, err)
			}
		})
	}
}

func drain(frames <-chan []byte) {
	for range frames {
	}
}
