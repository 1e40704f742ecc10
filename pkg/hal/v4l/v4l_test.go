package v4l

import (
	"context"
	"testing"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
)

func TestCharacteristicsPreviewLimit(t *testing.T) {
	sizes := []camera.Size{{Width: 3280, Height: 2464}, {Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	c := characteristics("/dev/video0", sizes, hal.Size{Width: 1280, Height: 720})

	jpeg := c.Sizes(hal.FormatJPEG)
	if len(jpeg) != 3 || jpeg[0] != (hal.Size{Width: 3280, Height: 2464}) {
		t.Fatalf("unexpected jpeg sizes %v", jpeg)
	}
	preview := c.Sizes(hal.FormatPreview)
	if len(preview) != 2 || preview[0] != (hal.Size{Width: 1280, Height: 720}) {
		t.Fatalf("unexpected preview sizes %v", preview)
	}
}

func TestCharacteristicsPreviewFallsBackToAll(t *testing.T) {
	sizes := []camera.Size{{Width: 3280, Height: 2464}}
	c := characteristics("/dev/video0", sizes, hal.Size{Width: 640, Height: 480})
	if got := c.Sizes(hal.FormatPreview); len(got) != 1 {
		t.Fatalf("expected preview to fall back to jpeg sizes, got %v", got)
	}
}

func TestStreamSize(t *testing.T) {
	preview := hal.NewSurface("preview")
	preview.SetDefaultBufferSize(hal.Size{Width: 1280, Height: 720})
	reader := hal.NewImageReader(hal.Size{Width: 3280, Height: 2464}, hal.FormatJPEG, 1)

	if got := streamSize([]hal.Target{preview}); got != (hal.Size{Width: 1280, Height: 720}) {
		t.Fatalf("preview-only session streams at %s", got)
	}
	if got := streamSize([]hal.Target{reader, preview}); got != (hal.Size{Width: 3280, Height: 2464}) {
		t.Fatalf("still session streams at %s", got)
	}
	if got := streamSize([]hal.Target{hal.NewSurface("empty")}); got != defaultStreamSize {
		t.Fatalf("unsized surface streams at %s", got)
	}
}

func TestUnknownCamera(t *testing.T) {
	m := NewManager(context.Background(), []string{"/dev/video0"})
	if err := m.OpenCamera("/dev/video9", hal.DeviceCallback{}, nil); err == nil {
		t.Fatal("opening an unknown camera should fail")
	}
	if _, err := NewManager(context.Background(), nil).CameraIDs(); err == nil {
		t.Fatal("a manager without devices should report no camera")
	}
}
