package camerax

import (
	"sync"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/screen"
)

// Preview streams the controller's preview frames into a surface while it is
// bound.
type Preview struct {
	surface *hal.Surface
	size    hal.Size

	mu   sync.Mutex
	done chan struct{}
}

func NewPreview(surface *hal.Surface, size hal.Size) *Preview {
	return &Preview{surface: surface, size: size}
}

func (p *Preview) bind(c *camera.Controller) error {
	frames, err := c.StartPreview(p.size.Width, p.size.Height)
	if err != nil {
		return err
	}
	p.surface.SetDefaultBufferSize(p.size)

	done := make(chan struct{})
	p.mu.Lock()
	p.done = done
	p.mu.Unlock()
	go func() {
		defer close(done)
		for frame := range frames {
			p.surface.Offer(frame)
		}
	}()

	return nil
}

// unbind stops the preview and waits for the last frame to be handed over.
func (p *Preview) unbind(c *camera.Controller) error {
	err := c.StopPreview()
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return err
}

// OutputFileResults describes a saved picture.
type OutputFileResults struct {
	Path     string
	Rotation hal.Rotation
}

type OnImageSavedCallback struct {
	OnImageSaved func(res OutputFileResults)
	OnError      func(err error)
}

// ImageCapture takes stills at a fixed size and writes them to the photo
// store.
type ImageCapture struct {
	size     hal.Size
	rotation hal.Rotation
}

func NewImageCapture(size hal.Size) *ImageCapture {
	return &ImageCapture{size: size}
}

func (ic *ImageCapture) Size() hal.Size {
	return ic.size
}

func (ic *ImageCapture) SetTargetRotation(r hal.Rotation) {
	ic.rotation = r
}

// TakePicture runs on exec. It captures one frame and saves it to path.
func (ic *ImageCapture) TakePicture(c *camera.Controller, photos screen.PhotoStore, path string, exec hal.Handler, cb OnImageSavedCallback) bool {
	return hal.Post(exec, func() {
		data, err := c.Capture(ic.size.Width, ic.size.Height)
		if err != nil {
			cb.OnError(err)
			return
		}
		if err := photos.Save(path, data); err != nil {
			cb.OnError(err)
			return
		}
		cb.OnImageSaved(OutputFileResults{Path: path, Rotation: ic.rotation})
	})
}
