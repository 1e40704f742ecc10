package hal

import (
	"errors"
	"testing"
	"time"
)

type refusingHandler struct{}

func (refusingHandler) Post(func()) bool { return false }

func TestImageReaderPoolLimit(t *testing.T) {
	r := NewImageReader(Size{640, 480}, FormatJPEG, 1)

	if !r.Deliver([]byte{1}, 90) {
		t.Fatal("first frame should be queued")
	}
	if r.Deliver([]byte{2}, 90) {
		t.Fatal("second frame should be dropped while the pool is full")
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", r.Dropped())
	}

	img, err := r.AcquireLatestImage()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bytes()[0] != 1 || img.Orientation() != 90 {
		t.Fatalf("unexpected image %v / %d", img.Bytes(), img.Orientation())
	}
	img.Close()
	img.Close()

	if r.Released() != 1 {
		t.Fatalf("image must be released exactly once, got %d", r.Released())
	}
	if r.Outstanding() != 0 {
		t.Fatalf("expected empty pool, got %d outstanding", r.Outstanding())
	}
	if !r.Deliver([]byte{3}, 0) {
		t.Fatal("frame should be queued once the pool has room")
	}
}

func TestAcquireLatestReleasesOlder(t *testing.T) {
	r := NewImageReader(Size{640, 480}, FormatJPEG, 3)
	r.Deliver([]byte{1}, 0)
	r.Deliver([]byte{2}, 0)
	r.Deliver([]byte{3}, 0)

	img, err := r.AcquireLatestImage()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bytes()[0] != 3 {
		t.Fatalf("expected newest frame, got %v", img.Bytes())
	}
	if ts := img.Timestamp(); ts.IsZero() || ts.After(time.Now()) {
		t.Fatalf("unexpected image timestamp %s", ts)
	}
	if r.Released() != 2 {
		t.Fatalf("expected 2 stale images released, got %d", r.Released())
	}
	if _, err := r.AcquireLatestImage(); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	img.Close()
}

func TestDeliverWithRefusingHandlerReleases(t *testing.T) {
	r := NewImageReader(Size{640, 480}, FormatJPEG, 1)
	called := false
	r.SetOnImageAvailableListener(func(*ImageReader) { called = true }, refusingHandler{})

	r.Deliver([]byte{1}, 0)
	if called {
		t.Fatal("listener must not run when the handler refuses")
	}
	if r.Outstanding() != 0 || r.Released() != 1 {
		t.Fatalf("undeliverable image should be released, outstanding=%d released=%d",
			r.Outstanding(), r.Released())
	}
}

func TestSurfaceKeepsLatestFrame(t *testing.T) {
	s := NewSurface("preview")
	s.Offer([]byte{1})
	s.Offer([]byte{2})

	f := <-s.Frames()
	if f[0] != 2 {
		t.Fatalf("expected latest frame, got %v", f)
	}
}

func TestSurfaceListenerFiresOnce(t *testing.T) {
	s := NewSurface("preview")
	n := 0
	s.SetListener(func(*Surface) { n++ })
	s.SetAvailable()
	s.SetAvailable()
	if n != 1 || !s.IsAvailable() {
		t.Fatalf("listener fired %d times, available=%v", n, s.IsAvailable())
	}
}

func TestRequestValidate(t *testing.T) {
	if err := NewRequest(TemplatePreview).Validate(); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if err := NewRequest(TemplatePreview, NewSurface("p")).Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParseRotation(t *testing.T) {
	cases := []struct {
		in   int
		want Rotation
	}{
		{0, Rotation0},
		{1, Rotation90},
		{90, Rotation90},
		{2, Rotation180},
		{180, Rotation180},
		{3, Rotation270},
		{270, Rotation270},
	}
	for _, c := range cases {
		got, err := ParseRotation(c.in)
		if err != nil {
			t.Fatalf("ParseRotation(%d): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseRotation(%d) = %v, want %v", c.in, got, c.want)
		}
	}
	for _, bad := range []int{-90, 4, 45, 360} {
		if _, err := ParseRotation(bad); !errors.Is(err, ErrInvalidRotation) {
			t.Errorf("ParseRotation(%d): expected ErrInvalidRotation, got %v", bad, err)
		}
	}
	if Rotation270.Degrees() != 270 || Rotation(7).Valid() {
		t.Fatal("unexpected rotation helpers")
	}
}
