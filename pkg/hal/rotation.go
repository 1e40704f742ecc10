package hal

import (
	"errors"
	"fmt"
)

var ErrInvalidRotation = errors.New("invalid display rotation")

// Rotation is the display rotation, as the index of a quarter turn.
type Rotation int

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// ParseRotation accepts degrees (0, 90, 180, 270) or a quarter-turn index
// (0 to 3).
func ParseRotation(v int) (Rotation, error) {
	switch v {
	case 0:
		return Rotation0, nil
	case 1, 90:
		return Rotation90, nil
	case 2, 180:
		return Rotation180, nil
	case 3, 270:
		return Rotation270, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, v)
}

func (r Rotation) Degrees() int {
	return int(r) * 90
}

func (r Rotation) Valid() bool {
	return r >= Rotation0 && r <= Rotation270
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", r.Degrees())
}
