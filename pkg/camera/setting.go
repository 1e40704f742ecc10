package camera

import (
	"maps"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"twin-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// V4L2 camera-class control ids.
const (
	CtrlExposureAuto v4l2.CtrlID = 10094849
	CtrlFocusAuto    v4l2.CtrlID = 10094860
	CtrlJPEGQuality  v4l2.CtrlID = 10291459
)

const (
	exposureAperturePriority v4l2.CtrlValue = 3
	focusAutoOn              v4l2.CtrlValue = 1
)

type Settings map[v4l2.CtrlID]v4l2.CtrlValue

// AutoSettings lets the sensor pick exposure and focus.
func AutoSettings() Settings {
	return Settings{
		CtrlExposureAuto: exposureAperturePriority,
		CtrlFocusAuto:    focusAutoOn,
		CtrlJPEGQuality:  90,
	}
}

func (s Settings) Clone() Settings {
	return maps.Clone(s)
}
