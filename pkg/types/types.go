package types

import (
	"time"
)

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"modTime"`
}

// Photo describes a saved capture.
type Photo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Bytes   int       `json:"bytes"`
	SavedAt time.Time `json:"savedAt"`
}
