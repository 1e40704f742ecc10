// Package permission tracks the user's consent to use the camera and to
// write photos, and the single prompt that asks for it.
package permission

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"twin-shutter/pkg/utils"
)

type Permission string

const (
	Camera  Permission = "camera"
	Storage Permission = "storage"
)

var (
	ErrRequestPending   = errors.New("a permission request is already pending")
	ErrNoPendingRequest = errors.New("no pending permission request")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Request is what the UI shows while waiting for an answer.
type Request struct {
	ID          int          `json:"id"`
	Permissions []Permission `json:"permissions"`
	RequestedAt time.Time    `json:"requestedAt"`
}

type pending struct {
	Request
	onResult func(granted bool)
}

type Gate struct {
	devicePath string
	storageDir string
	access     func(path string, mode uint32) error

	lock    sync.Mutex
	granted map[Permission]bool
	pending *pending
	nextID  int
}

// NewGate returns a gate for the camera at devicePath and photos under
// storageDir. autoGrant pre-grants everything.
func NewGate(devicePath, storageDir string, autoGrant bool) *Gate {
	g := &Gate{
		devicePath: devicePath,
		storageDir: storageDir,
		access:     unix.Access,
		granted:    make(map[Permission]bool),
	}
	if autoGrant {
		g.granted[Camera] = true
		g.granted[Storage] = true
	}

	return g
}

// Check reports whether every one of perms is granted.
func (g *Gate) Check(perms ...Permission) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	for _, p := range perms {
		if !g.granted[p] {
			return false
		}
	}
	return true
}

// Request shows a prompt for perms. onResult runs once, from Answer.
func (g *Gate) Request(perms []Permission, onResult func(granted bool)) (Request, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.pending != nil {
		return Request{}, ErrRequestPending
	}
	g.nextID++
	r := Request{
		ID:          g.nextID,
		Permissions: slices.Clone(perms),
		RequestedAt: time.Now(),
	}
	g.pending = &pending{Request: r, onResult: onResult}
	logger.Infof("permission request %d: %v", r.ID, perms)

	return r, nil
}

func (g *Gate) Pending() (Request, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.pending == nil {
		return Request{}, false
	}
	return g.pending.Request, true
}

// Answer resolves the pending prompt. A grant the system cannot honour, such
// as an unreadable device node, turns into a denial.
func (g *Gate) Answer(granted bool) (bool, error) {
	g.lock.Lock()
	p := g.pending
	if p == nil {
		g.lock.Unlock()
		return false, ErrNoPendingRequest
	}
	g.pending = nil
	if granted {
		for _, perm := range p.Permissions {
			if err := g.verify(perm); err != nil {
				logger.Warnf("permission %s cannot be granted: %s", perm, err)
				granted = false
				break
			}
		}
	}
	if granted {
		for _, perm := range p.Permissions {
			g.granted[perm] = true
		}
	}
	g.lock.Unlock()

	logger.Infof("permission request %d answered, granted: %v", p.ID, granted)
	if p.onResult != nil {
		p.onResult(granted)
	}

	return granted, nil
}

// Cancel drops request id without calling its result callback.
func (g *Gate) Cancel(id int) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.pending != nil && g.pending.ID == id {
		g.pending = nil
	}
}

func (g *Gate) verify(p Permission) error {
	switch p {
	case Camera:
		if err := g.access(g.devicePath, unix.R_OK|unix.W_OK); err != nil {
			return fmt.Errorf("%s: %w", g.devicePath, err)
		}
	case Storage:
		if err := g.access(g.storageDir, unix.W_OK); err != nil {
			return fmt.Errorf("%s: %w", g.storageDir, err)
		}
	default:
		return fmt.Errorf("unknown permission %q", p)
	}
	return nil
}
