// Package launcher offers the capture screens as choices and keeps exactly
// one of them running.
package launcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/utils"
)

var ErrUnknownScreen = errors.New("unknown screen")

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Factory builds a fresh screen for every launch.
type Factory func() screen.Screen

type Launcher struct {
	lock      sync.Mutex
	factories map[string]Factory
	order     []string
	active    screen.Screen
	surface   *hal.Surface
}

func New() *Launcher {
	return &Launcher{factories: make(map[string]Factory)}
}

// Register adds a choice. Registering a name twice replaces the factory.
func (l *Launcher) Register(name string, f Factory) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if _, ok := l.factories[name]; !ok {
		l.order = append(l.order, name)
	}
	l.factories[name] = f
}

// Names lists the choices in registration order.
func (l *Launcher) Names() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.order...)
}

// Launch starts the screen called name, pausing and destroying the active
// one. Launching the active screen again does nothing.
func (l *Launcher) Launch(name string) (screen.Screen, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	f, ok := l.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q, want one of %v", ErrUnknownScreen, name, sortedKeys(l.factories))
	}
	if l.active != nil && l.active.Name() == name {
		return l.active, nil
	}
	l.closeActive()

	s := f()
	surface := hal.NewSurface(name)
	s.Create(surface)
	s.Resume()
	l.active = s
	l.surface = surface
	surface.SetAvailable()
	logger.Infof("launched %s", name)

	return s, nil
}

// Active returns the running screen and its preview surface.
func (l *Launcher) Active() (screen.Screen, *hal.Surface, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.active == nil {
		return nil, nil, false
	}
	return l.active, l.surface, true
}

// Close stops the active screen.
func (l *Launcher) Close() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.closeActive()
}

func (l *Launcher) closeActive() {
	if l.active == nil {
		return
	}
	name := l.active.Name()
	l.active.Pause()
	l.active.Destroy()
	l.active = nil
	l.surface = nil
	logger.Infof("closed %s", name)
}

func sortedKeys(m map[string]Factory) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
