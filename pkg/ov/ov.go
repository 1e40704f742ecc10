// Package ov holds the request and response bodies of the HTTP API.
package ov

import (
	"twin-shutter/pkg/permission"
	"twin-shutter/pkg/utils/ps"
)

type Launcher struct {
	Choices []string `json:"choices"`
	Active  string   `json:"active,omitempty"`
}

type Screen struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type Capture struct {
	Screen   string `json:"screen"`
	Rotation int    `json:"rotation"`
}

type PermissionPrompt struct {
	Pending bool                `json:"pending"`
	Request *permission.Request `json:"request,omitempty"`
}

type PermissionAnswer struct {
	Granted *bool `json:"granted" binding:"required"`
}

type PermissionResult struct {
	Granted bool `json:"granted"`
}

type ExportRequest struct {
	FPS int `json:"fps"`
}

type Export struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Webdav struct {
	Running bool `json:"running"`
	Port    int  `json:"port"`
}

type DeviceStatus struct {
	ps.Status
	Webdav Webdav `json:"webdav"`
}
