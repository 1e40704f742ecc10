// Package screen holds what the two capture screens have in common: the
// lifecycle the launcher drives and the services a screen depends on.
package screen

import (
	"errors"

	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/permission"
)

var ErrNotPreviewing = errors.New("screen is not previewing")

const (
	MsgPermissionDenied     = "Cannot Start Camera Permission Denied!"
	MsgConfigurationChanged = "Configuration Changed"
	MsgImageSaved           = "Image Saved!"
)

// Required is what a screen needs before it may open the camera.
var Required = []permission.Permission{permission.Camera, permission.Storage}

// Screen is one of the launcher's choices. Create, Resume, Pause and Destroy
// are called from the launcher in that order; Capture and State may be called
// from any goroutine.
type Screen interface {
	Name() string
	Create(surface *hal.Surface)
	Resume()
	Pause()
	Destroy()
	Capture(rotation hal.Rotation) error
	State() string
}

type Permissions interface {
	Check(perms ...permission.Permission) bool
	Request(perms []permission.Permission, onResult func(granted bool)) (permission.Request, error)
	Cancel(id int)
}

type Notifier interface {
	Show(source, text string, length notice.Length)
}

// PhotoStore names and writes captured photos.
type PhotoStore interface {
	NewPhotoPath() string
	Save(path string, data []byte) error
}

type Deps struct {
	Permissions Permissions
	Notices     Notifier
	Photos      PhotoStore
}
