// probe prints what a camera reports to the capture screens: its preview and
// still sizes and the controls the appliance sets.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/goccy/go-json"

	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/hal/v4l"
)

type report struct {
	Device          string              `json:"device"`
	Characteristics hal.Characteristics `json:"characteristics"`
	MaxSize         hal.Size            `json:"maxSize"`
	AutoSettings    camera.Settings     `json:"autoSettings"`
}

func main() {
	devName := "/dev/video0"
	flag.StringVar(&devName, "d", devName, "device name (path)")
	limit := flag.Int("preview-width", 1280, "largest preview width")
	flag.Parse()

	ctx := context.Background()
	m := v4l.NewManager(ctx, []string{devName}, v4l.WithPreviewLimit(hal.Size{Width: *limit, Height: *limit * 9 / 16}))
	chars, err := m.Characteristics(devName)
	if err != nil {
		log.Fatalf("failed to probe device: %s", err)
	}
	w, h, err := camera.New(ctx, devName).MaxSize()
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report{
		Device:          devName,
		Characteristics: chars,
		MaxSize:         hal.Size{Width: w, Height: h},
		AutoSettings:    camera.AutoSettings(),
	}); err != nil {
		log.Fatal(err)
	}
}
