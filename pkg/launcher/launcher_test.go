package launcher

import (
	"errors"
	"reflect"
	"testing"

	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/screen"
)

type recordingScreen struct {
	name    string
	calls   []string
	surface *hal.Surface
}

func (r *recordingScreen) Name() string { return r.name }

func (r *recordingScreen) Create(s *hal.Surface) {
	r.surface = s
	r.calls = append(r.calls, "create")
}

func (r *recordingScreen) Resume() { r.calls = append(r.calls, "resume") }
func (r *recordingScreen) Pause() { r.calls = append(r.calls, "pause") }
func (r *recordingScreen) Destroy() { r.calls = append(r.calls, "destroy") }

func (r *recordingScreen) Capture(hal.Rotation) error { return nil }
func (r *recordingScreen) State() string { return "idle" }

func newTestLauncher() (*Launcher, map[string][]*recordingScreen) {
	built := make(map[string][]*recordingScreen)
	l := New()
	for _, name := range []string{"camera2", "camerax"} {
		name := name
		l.Register(name, func() screen.Screen {
			s := &recordingScreen{name: name}
			built[name] = append(built[name], s)
			return s
		})
	}
	return l, built
}

func TestNames(t *testing.T) {
	l, _ := newTestLauncher()
	if got, want := l.Names(), []string{"camera2", "camerax"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestLaunchUnknown(t *testing.T) {
	l, _ := newTestLauncher()
	if _, err := l.Launch("camera3"); !errors.Is(err, ErrUnknownScreen) {
		t.Errorf("Launch() error = %v, want ErrUnknownScreen", err)
	}
	if _, _, ok := l.Active(); ok {
		t.Error("unknown launch left an active screen")
	}
}

func TestLaunchSwitchesScreens(t *testing.T) {
	l, built := newTestLauncher()

	if _, err := l.Launch("camera2"); err != nil {
		t.Fatalf("Launch(camera2) error = %v", err)
	}
	first := built["camera2"][0]
	if !first.surface.IsAvailable() {
		t.Error("surface not marked available")
	}
	if want := []string{"create", "resume"}; !reflect.DeepEqual(first.calls, want) {
		t.Errorf("camera2 calls = %v, want %v", first.calls, want)
	}

	if _, err := l.Launch("camera2"); err != nil {
		t.Fatalf("relaunch error = %v", err)
	}
	if len(built["camera2"]) != 1 {
		t.Errorf("relaunching the active screen built %d screens", len(built["camera2"]))
	}

	if _, err := l.Launch("camerax"); err != nil {
		t.Fatalf("Launch(camerax) error = %v", err)
	}
	if want := []string{"create", "resume", "pause", "destroy"}; !reflect.DeepEqual(first.calls, want) {
		t.Errorf("camera2 calls = %v, want %v", first.calls, want)
	}
	active, surface, ok := l.Active()
	if !ok || active.Name() != "camerax" || surface == first.surface {
		t.Errorf("Active() = %v, %v, %v", active, surface, ok)
	}

	l.Close()
	if _, _, ok := l.Active(); ok {
		t.Error("Close() left an active screen")
	}
}
