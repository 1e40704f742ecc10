package camera

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrPreviewStarted = errors.New("preview already started")
	ErrStreamClosed   = errors.New("capture stream closed")
)

// Source is a device that streams frames at a chosen resolution. *Camera is
// the V4L2 implementation.
type Source interface {
	Start(width, height int) (<-chan []byte, error)
	Stop() error
}

// Controller manages preview and still capture over one Source, keeping a
// persistent preview channel.
//
//   - StartPreview(width, height) starts the device at the given resolution
//     and returns a channel of JPEG frames. The channel lives for the whole
//     preview; StopPreview closes it.
//   - Capture(width, height) takes one photo. A running preview is stopped,
//     the device is switched to the capture resolution for one frame, and the
//     preview resolution is restored afterwards. The preview channel stays
//     open during the capture but receives no frames.
type Controller struct {
	mu sync.Mutex

	src Source

	previewCh chan []byte
	loopStop  chan struct{}
	srcUpdate chan (<-chan []byte)

	// preview resolution, restored after a capture
	pW, pH int

	previewing bool

	resumeDelay time.Duration
	retryDelay  time.Duration
}

func NewController(src Source) *Controller {
	return &Controller{
		src:         src,
		resumeDelay: 50 * time.Millisecond,
		retryDelay:  150 * time.Millisecond,
	}
}

// StartPreview starts the preview at width x height and returns the preview
// channel. It fails if the preview is already running.
func (c *Controller) StartPreview(width, height int) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.previewing {
		return nil, ErrPreviewStarted
	}

	frames, err := c.src.Start(width, height)
	if err != nil {
		return nil, err
	}

	if c.previewCh == nil {
		c.previewCh = make(chan []byte, 1)
		c.loopStop = make(chan struct{})
		c.srcUpdate = make(chan (<-chan []byte), 1)
		go c.previewLoop(c.previewCh, c.loopStop, c.srcUpdate)
	}
	c.pW, c.pH = width, height
	c.previewing = true
	c.setSource(frames)

	return c.previewCh, nil
}

// StopPreview stops the device and closes the preview channel.
func (c *Controller) StopPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.previewCh == nil {
		return nil
	}
	c.previewing = false
	err := c.src.Stop()
	close(c.loopStop)
	c.loopStop = nil
	c.srcUpdate = nil
	c.previewCh = nil

	return err
}

func (c *Controller) Previewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewing
}

// Capture takes one frame at width x height. A running preview pauses for
// the capture and resumes afterwards; a failure to resume is logged and the
// captured frame is still returned.
func (c *Controller) Capture(width, height int) ([]byte, error) {
	c.mu.Lock()
	wasPreviewing := c.previewing
	c.previewing = false
	c.mu.Unlock()

	if wasPreviewing {
		_ = c.src.Stop()
	}

	frames, err := c.src.Start(width, height)
	if err != nil {
		if wasPreviewing {
			c.restorePreview()
		}
		return nil, err
	}

	frame, ok := <-frames
	// keep the stream moving so the producer can see the stop
	go func() {
		for range frames {
		}
	}()
	_ = c.src.Stop()
	if !ok {
		if wasPreviewing {
			c.restorePreview()
		}
		return nil, ErrStreamClosed
	}
	img := append([]byte{}, frame...)

	if wasPreviewing {
		c.restorePreview()
	}

	return img, nil
}

func (c *Controller) restorePreview() {
	c.mu.Lock()
	w, h := c.pW, c.pH
	c.mu.Unlock()

	fr, err := c.resumePreview(w, h)
	if err != nil {
		logger.Warnf("failed to resume preview after capture: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previewCh == nil {
		// stopped while capturing
		_ = c.src.Stop()
		return
	}
	c.previewing = true
	c.setSource(fr)
}

// setSource hands a new frame source to the preview loop, replacing one it
// has not picked up yet. Called with mu held.
func (c *Controller) setSource(fr <-chan []byte) {
	if c.srcUpdate == nil {
		return
	}
	select {
	case <-c.srcUpdate:
	default:
	}
	c.srcUpdate <- fr
}

// previewLoop forwards frames of the current source to out. out stays open
// across source switches and is closed only when stop is closed.
func (c *Controller) previewLoop(out chan []byte, stop <-chan struct{}, updates <-chan (<-chan []byte)) {
	defer close(out)
	var current <-chan []byte
	for {
		select {
		case <-stop:
			return
		case ch := <-updates:
			current = ch
		case frame, ok := <-current:
			if !ok {
				// source ended, e.g. for a capture; wait for the next one
				current = nil
				continue
			}
			if frame == nil {
				continue
			}
			// drop the frame if the consumer is slow
			select {
			case out <- append([]byte(nil), frame...):
			default:
			}
		}
	}
}

// resumePreview restarts the preview, retrying while the driver reports EBUSY.
func (c *Controller) resumePreview(width, height int) (<-chan []byte, error) {
	time.Sleep(c.resumeDelay)
	var (
		fr  <-chan []byte
		err error
	)
	for i := 0; i < 5; i++ {
		fr, err = c.src.Start(width, height)
		if err == nil {
			return fr, nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("failed to resume preview will retry %d/5: %v", i+1, err)
		time.Sleep(c.retryDelay)
	}
	return nil, err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}
