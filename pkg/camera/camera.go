package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

const (
	DefaultDevice = "/dev/video0"

	probeWidth  = 320
	probeHeight = 240
)

var (
	StartedErr    = errors.New("already started")
	NotStartedErr = errors.New("camera not started")
)

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%d_%d", s.Width, s.Height)
}

// Camera streams JPEG frames from one V4L2 device. Changing the resolution
// means stopping and starting again.
type Camera struct {
	devName string
	ctx     context.Context

	lock   sync.Mutex
	cancel context.CancelFunc
	camera *device.Device

	settings Settings
}

func New(ctx context.Context, devName string) *Camera {
	return &Camera{ctx: ctx, devName: devName, settings: make(Settings)}
}

func (c *Camera) DevName() string {
	return c.devName
}

func (c *Camera) open(width, height int) error {
	if c.camera != nil {
		return StartedErr
	}
	camera, err := device.Open(
		c.devName,
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       uint32(width),
			Height:      uint32(height),
		}),
	)
	if err != nil {
		return err
	}
	c.camera = camera

	return nil
}

// Start opens the device at width x height and returns its frame channel. The
// channel is closed when the stream stops.
func (c *Camera) Start(width, height int) (<-chan []byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	logger.Infof("start camera %s in %d*%d", c.devName, width, height)
	err := c.open(width, height)
	if err != nil {
		return nil, err
	}

	newCtx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	if err = c.camera.Start(newCtx); err != nil {
		cancel()
		c.cancel = nil
		_ = c.camera.Close()
		c.camera = nil
		return nil, err
	}

	c.applySettings()

	return c.camera.GetOutput(), nil
}

func (c *Camera) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		// let the stream goroutine leave through ctx.Done before Close
		c.cancel()
		time.Sleep(100 * time.Millisecond)
		c.cancel = nil
	}
	if c.camera != nil {
		err := c.camera.Close()
		c.camera = nil
		return err
	}
	return nil
}

// Probe checks that the device can be opened.
func (c *Camera) Probe() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera != nil {
		return nil
	}
	camera, err := c.openProbe()
	if err != nil {
		return err
	}

	return camera.Close()
}

func (c *Camera) UpdateSettings(settings Settings) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.settings = settings.Clone()

	c.applySettings()
}

func (c *Camera) applySettings() {
	if c.camera == nil {
		return
	}
	for k, v := range c.settings {
		if err := c.camera.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}
}

func (c *Camera) SetControlValue(key v4l2.CtrlID, value v4l2.CtrlValue) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.settings[key] = value
	if c.camera == nil {
		return nil
	}

	return c.camera.SetControlValue(key, value)
}

// FrameSizes lists the JPEG frame sizes of the device, largest first.
func (c *Camera) FrameSizes() ([]Size, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	camera := c.camera
	if camera == nil {
		var err error
		camera, err = c.openProbe()
		if err != nil {
			return nil, err
		}
		defer camera.Close()
	}

	sizes, err := v4l2.GetAllFormatFrameSizes(camera.Fd())
	if err != nil {
		return nil, err
	}
	var res []Size
	seen := make(map[Size]bool)
	for _, size := range sizes {
		if size.PixelFormat != v4l2.PixelFmtJPEG && size.PixelFormat != v4l2.PixelFmtMJPEG {
			continue
		}
		s := Size{Width: int(size.Size.MaxWidth), Height: int(size.Size.MaxHeight)}
		if s.Width == 0 || s.Height == 0 || seen[s] {
			continue
		}
		seen[s] = true
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Width*res[i].Height > res[j].Width*res[j].Height
	})

	return res, nil
}

// MaxSize returns the largest JPEG frame size of the device.
func (c *Camera) MaxSize() (width, height int, err error) {
	sizes, err := c.FrameSizes()
	if err != nil {
		return
	}
	if len(sizes) == 0 {
		err = fmt.Errorf("unable to determine the maximum pixels of the camera")
		return
	}

	return sizes[0].Width, sizes[0].Height, nil
}

func (c *Camera) openProbe() (*device.Device, error) {
	return device.Open(c.devName,
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       uint32(probeWidth),
			Height:      uint32(probeHeight),
		}))
}
