// Package video packs JPEG frames into an MJPEG AVI.
package video

import (
	"errors"

	"github.com/icza/mjpeg"
)

var ErrNoFrames = errors.New("no frames added")

type Builder struct {
	path   string
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

// Add appends one JPEG frame. Frames are not re-encoded.
func (b *Builder) Add(frame []byte) error {
	if err := b.aw.AddFrame(frame); err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *Builder) Close() error {
	if err := b.aw.Close(); err != nil {
		return err
	}
	if b.cnt == 0 {
		return ErrNoFrames
	}
	return nil
}

func (b *Builder) GetCnt() int {
	return b.cnt
}

func (b *Builder) Path() string {
	return b.path
}
