package permission

import (
	"errors"
	"testing"
)

func newTestGate(accessErr error) *Gate {
	g := NewGate("/dev/video0", "/tmp", false)
	g.access = func(string, uint32) error { return accessErr }
	return g
}

func TestGrant(t *testing.T) {
	g := newTestGate(nil)
	if g.Check(Camera, Storage) {
		t.Fatal("nothing should be granted up front")
	}

	var result *bool
	if _, err := g.Request([]Permission{Camera, Storage}, func(ok bool) { result = &ok }); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Pending(); !ok {
		t.Fatal("request should be pending")
	}
	granted, err := g.Answer(true)
	if err != nil {
		t.Fatal(err)
	}
	if !granted || result == nil || !*result {
		t.Fatal("expected a grant")
	}
	if !g.Check(Camera, Storage) {
		t.Fatal("permissions should be granted after the answer")
	}
	if _, ok := g.Pending(); ok {
		t.Fatal("request should be resolved")
	}
}

func TestDeny(t *testing.T) {
	g := newTestGate(nil)
	var result *bool
	g.Request([]Permission{Camera}, func(ok bool) { result = &ok })
	if granted, _ := g.Answer(false); granted {
		t.Fatal("expected a denial")
	}
	if result == nil || *result {
		t.Fatal("callback should report the denial")
	}
	if g.Check(Camera) {
		t.Fatal("camera must stay denied")
	}
}

func TestGrantWithoutSystemAccessIsDenied(t *testing.T) {
	g := newTestGate(errors.New("permission denied"))
	g.Request([]Permission{Camera}, nil)
	granted, err := g.Answer(true)
	if err != nil {
		t.Fatal(err)
	}
	if granted || g.Check(Camera) {
		t.Fatal("grant must fail when the device node is not accessible")
	}
}

func TestSingleRequestAtATime(t *testing.T) {
	g := newTestGate(nil)
	if _, err := g.Request([]Permission{Camera}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Request([]Permission{Camera}, nil); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("expected ErrRequestPending, got %v", err)
	}
}

func TestAnswerWithoutRequest(t *testing.T) {
	g := newTestGate(nil)
	if _, err := g.Answer(true); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	g := newTestGate(nil)
	called := false
	r, _ := g.Request([]Permission{Camera}, func(bool) { called = true })
	g.Cancel(r.ID)
	if _, ok := g.Pending(); ok {
		t.Fatal("request should be gone")
	}
	if _, err := g.Answer(true); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
	if called {
		t.Fatal("cancelled request must not report a result")
	}
}

func TestAutoGrant(t *testing.T) {
	g := NewGate("/dev/video0", "/tmp", true)
	if !g.Check(Camera, Storage) {
		t.Fatal("auto grant should grant everything")
	}
}
