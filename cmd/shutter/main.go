// shutter takes one photo without the web UI, through either capture screen.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/camera2"
	"twin-shutter/pkg/camerax"
	"twin-shutter/pkg/clock"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/hal/v4l"
	"twin-shutter/pkg/launcher"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/permission"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/storage"
	"twin-shutter/pkg/types"
	"twin-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

func main() {
	impl := flag.String("impl", camera2.Name, "capture screen: camera2 or camerax")
	devName := flag.String("d", "/dev/video0", "device name (path)")
	dir := flag.String("dir", "./twin-shutter", "photo directory")
	rotation := flag.Int("rotation", 0, "display rotation in degrees")
	timeout := flag.Duration("timeout", 15*time.Second, "give up after")
	level := flag.String("log", "info", "log level")
	flag.Parse()
	utils.SetLevel(*level)

	path, err := shoot(*impl, *devName, *dir, *rotation, *timeout)
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func shoot(impl, devName, dir string, rotation int, timeout time.Duration) (string, error) {
	r, err := hal.ParseRotation(rotation)
	if err != nil {
		return "", err
	}
	stg, err := storage.New(dir, clock.System{})
	if err != nil {
		return "", err
	}
	defer stg.Close()
	saved := make(chan types.Photo, 1)
	stg.OnSaved(func(p types.Photo) {
		select {
		case saved <- p:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	board := notice.NewBoard(0)
	notices, stop := board.Subscribe()
	defer stop()
	deps := screen.Deps{
		Permissions: permission.NewGate(devName, dir, true),
		Notices:     board,
		Photos:      stg,
	}
	l := launcher.New()
	l.Register(camera2.Name, func() screen.Screen {
		return camera2.New(v4l.NewManager(ctx, []string{devName}), deps)
	})
	l.Register(camerax.Name, func() screen.Screen {
		return camerax.New(camera.New(ctx, devName), deps, hal.Size{})
	})
	defer l.Close()

	sc, err := l.Launch(impl)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	requested := false
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s: no photo within %s (state %s)", impl, timeout, sc.State())
		case n := <-notices:
			logger.Infof("%s: %s", n.Source, n.Text)
		case p := <-saved:
			return p.Path, nil
		case <-ticker.C:
			if requested {
				continue
			}
			if err := sc.Capture(r); err == nil {
				requested = true
			}
		}
	}
}
