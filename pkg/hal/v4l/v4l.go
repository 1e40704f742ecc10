// Package v4l implements hal on top of V4L2 devices through pkg/camera.
//
// A V4L2 device streams at one resolution at a time, so configuring a session
// (re)starts the stream at the size of its largest target. Preview surfaces
// and image readers of the same session share that stream.
package v4l

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/utils"
)

const defaultWarmupFrames = 2

var (
	logger *zap.SugaredLogger

	defaultStreamSize = hal.Size{Width: 640, Height: 480}
)

func init() {
	logger = utils.GetLogger()
}

// source is the part of *camera.Camera a device drives.
type source interface {
	camera.Source
	Probe() error
	UpdateSettings(settings camera.Settings)
	DevName() string
}

func newCameraSource(ctx context.Context, id string) source {
	return camera.New(ctx, id)
}

type Option func(*Manager)

// WithPreviewLimit caps the sizes reported for FormatPreview.
func WithPreviewLimit(size hal.Size) Option {
	return func(m *Manager) {
		m.previewLimit = size
	}
}

// WithWarmupFrames sets how many frames a fresh stream discards before it
// serves a still capture; auto exposure needs a few frames to settle.
func WithWarmupFrames(n int) Option {
	return func(m *Manager) {
		m.warmup = n
	}
}

type Manager struct {
	ctx          context.Context
	devices      []string
	previewLimit hal.Size
	warmup       int
	newSource    func(ctx context.Context, id string) source

	lock  sync.Mutex
	chars map[string]hal.Characteristics
}

func NewManager(ctx context.Context, devices []string, opts ...Option) *Manager {
	m := &Manager{
		ctx:          ctx,
		devices:      slices.Clone(devices),
		previewLimit: hal.Size{Width: 1280, Height: 720},
		warmup:       defaultWarmupFrames,
		newSource:    newCameraSource,
		chars:        make(map[string]hal.Characteristics),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) CameraIDs() ([]string, error) {
	if len(m.devices) == 0 {
		return nil, hal.ErrNoCamera
	}
	return slices.Clone(m.devices), nil
}

func (m *Manager) Characteristics(id string) (hal.Characteristics, error) {
	if !slices.Contains(m.devices, id) {
		return hal.Characteristics{}, fmt.Errorf("camera %s: %w", id, hal.ErrNoCamera)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if c, ok := m.chars[id]; ok {
		return c, nil
	}

	sizes, err := camera.New(m.ctx, id).FrameSizes()
	if err != nil {
		return hal.Characteristics{}, fmt.Errorf("query frame sizes of %s: %w", id, err)
	}
	c := characteristics(id, sizes, m.previewLimit)
	m.chars[id] = c

	return c, nil
}

func characteristics(id string, sizes []camera.Size, previewLimit hal.Size) hal.Characteristics {
	var jpeg, preview []hal.Size
	for _, s := range sizes {
		size := hal.Size{Width: s.Width, Height: s.Height}
		jpeg = append(jpeg, size)
		if size.Width <= previewLimit.Width && size.Height <= previewLimit.Height {
			preview = append(preview, size)
		}
	}
	if len(preview) == 0 {
		preview = jpeg
	}

	return hal.Characteristics{
		ID: id,
		OutputSizes: map[hal.Format][]hal.Size{
			hal.FormatJPEG:    jpeg,
			hal.FormatPreview: preview,
		},
	}
}

// OpenCamera probes the device in the background and reports through cb.
func (m *Manager) OpenCamera(id string, cb hal.DeviceCallback, h hal.Handler) error {
	if !slices.Contains(m.devices, id) {
		return fmt.Errorf("camera %s: %w", id, hal.ErrNoCamera)
	}
	d := &Device{
		id:     id,
		cam:    m.newSource(m.ctx, id),
		cb:     cb,
		h:      h,
		warmup: m.warmup,
	}
	go func() {
		if err := d.cam.Probe(); err != nil {
			logger.Warnf("open camera %s: %s", id, err)
			hal.Post(h, func() {
				if cb.OnError != nil {
					cb.OnError(d, err)
				}
			})
			return
		}
		hal.Post(h, func() {
			if cb.OnOpened != nil {
				cb.OnOpened(d)
			}
		})
	}()

	return nil
}
