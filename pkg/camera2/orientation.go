package camera2

import (
	"fmt"

	"twin-shutter/pkg/hal"
)

// orientations converts the display rotation to the JPEG orientation of the
// back sensor, which is mounted a quarter turn off the display.
var orientations = map[hal.Rotation]int{
	hal.Rotation0:   90,
	hal.Rotation90:  0,
	hal.Rotation180: 270,
	hal.Rotation270: 180,
}

func JPEGOrientation(r hal.Rotation) (int, error) {
	o, ok := orientations[r]
	if !ok {
		return 0, fmt.Errorf("%w: %d", hal.ErrInvalidRotation, int(r))
	}
	return o, nil
}
