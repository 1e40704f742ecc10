package camera

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSource streams frames naming the resolution they were started at.
type fakeSource struct {
	mu      sync.Mutex
	starts  []Size
	errs    []error
	stop    chan struct{}
	running bool
}

func (f *fakeSource) Start(width, height int) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, Size{Width: width, Height: height})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.running {
		return nil, StartedErr
	}
	ch := make(chan []byte)
	stop := make(chan struct{})
	f.stop = stop
	f.running = true
	go func() {
		defer close(ch)
		for {
			select {
			case <-stop:
				return
			case ch <- []byte(fmt.Sprintf("%dx%d", width, height)):
				time.Sleep(time.Millisecond)
			}
		}
	}()

	return ch, nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		close(f.stop)
		f.running = false
	}
	return nil
}

func (f *fakeSource) startedSizes() []Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Size(nil), f.starts...)
}

func newTestController(src Source) *Controller {
	c := NewController(src)
	c.resumeDelay = time.Millisecond
	c.retryDelay = time.Millisecond
	return c
}

func waitFrame(t *testing.T, ch <-chan []byte, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("preview channel closed while waiting for %s", want)
			}
			if string(f) == want {
				return
			}
		case <-deadline:
			t.Fatalf("no %s frame on the preview channel", want)
		}
	}
}

func TestCaptureWithoutPreview(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)

	img, err := c.Capture(3280, 2464)
	if err != nil {
		t.Fatal(err)
	}
	if string(img) != "3280x2464" {
		t.Fatalf("unexpected frame %q", img)
	}
	if c.Previewing() {
		t.Fatal("capture without preview must not start one")
	}
	if got := src.startedSizes(); len(got) != 1 {
		t.Fatalf("expected one start, got %v", got)
	}
}

func TestCaptureResumesPreview(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)

	ch, err := c.StartPreview(640, 480)
	if err != nil {
		t.Fatal(err)
	}
	defer c.StopPreview()
	waitFrame(t, ch, "640x480")

	img, err := c.Capture(1920, 1080)
	if err != nil {
		t.Fatal(err)
	}
	if string(img) != "1920x1080" {
		t.Fatalf("unexpected capture %q", img)
	}
	waitFrame(t, ch, "640x480")
	if !c.Previewing() {
		t.Fatal("preview should be running again")
	}

	want := []Size{{640, 480}, {1920, 1080}, {640, 480}}
	got := src.startedSizes()
	if len(got) != len(want) {
		t.Fatalf("starts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("starts = %v, want %v", got, want)
		}
	}
}

func TestStartPreviewTwice(t *testing.T) {
	c := newTestController(&fakeSource{})
	if _, err := c.StartPreview(640, 480); err != nil {
		t.Fatal(err)
	}
	defer c.StopPreview()
	if _, err := c.StartPreview(640, 480); !errors.Is(err, ErrPreviewStarted) {
		t.Fatalf("expected ErrPreviewStarted, got %v", err)
	}
}

func TestStopPreviewClosesChannel(t *testing.T) {
	c := newTestController(&fakeSource{})
	ch, err := c.StartPreview(640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StopPreview(); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("preview channel was not closed")
		}
	}
}

func TestResumeRetriesOnBusy(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)
	ch, err := c.StartPreview(640, 480)
	if err != nil {
		t.Fatal(err)
	}
	defer c.StopPreview()

	// capture start succeeds, first resume attempt reports EBUSY
	src.mu.Lock()
	src.errs = []error{nil, errors.New("device or resource busy")}
	src.mu.Unlock()

	if _, err := c.Capture(1920, 1080); err != nil {
		t.Fatal(err)
	}
	waitFrame(t, ch, "640x480")
	if n := len(src.startedSizes()); n != 4 {
		t.Fatalf("expected 4 starts (preview, capture, busy, resume), got %d", n)
	}
}

func TestCaptureStartErrorKeepsPreview(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(src)
	ch, err := c.StartPreview(640, 480)
	if err != nil {
		t.Fatal(err)
	}
	defer c.StopPreview()

	boom := errors.New("boom")
	src.mu.Lock()
	src.errs = []error{boom}
	src.mu.Unlock()

	if _, err := c.Capture(1920, 1080); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	waitFrame(t, ch, "640x480")
}
