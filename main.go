package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"twin-shutter/pkg/announce"
	"twin-shutter/pkg/button"
	"twin-shutter/pkg/camera"
	"twin-shutter/pkg/camera2"
	"twin-shutter/pkg/camerax"
	"twin-shutter/pkg/clock"
	"twin-shutter/pkg/config"
	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/hal/v4l"
	"twin-shutter/pkg/launcher"
	"twin-shutter/pkg/mirror"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/permission"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/storage"
	"twin-shutter/pkg/utils"
	"twin-shutter/pkg/webdav"
)

var (
	configFile = flag.String("config", "", "yaml config file")
	envFile    = flag.String("env", ".env", "dotenv file, ignored when missing")
	port       = flag.Int("port", 0, "ui port, overrides the config")
	storageDir = flag.String("dir", "", "photo directory, overrides the config")
	staticsDir = flag.String("statics", "", "ui statics directory, overrides the config")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
}

func main() {
	flag.Parse()
	defer logger.Sync()

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Fatal(err)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal(err)
	}
	applyFlags(cfg)
	utils.SetLevel(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var clk clock.Clock = clock.System{}
	if cfg.NTP.Server != "" {
		n := clock.NewNTP(cfg.NTP.Server)
		go n.Run(ctx, cfg.NTPInterval())
		clk = n
	}

	// init storage
	stg, err := storage.New(cfg.Storage.Dir, clk)
	if err != nil {
		logger.Fatal(err)
	}
	defer stg.Close()

	board := notice.NewBoard(0)
	gate := permission.NewGate(cfg.Camera.Device, stg.Root(), cfg.Permission.AutoGrant)
	deps := screen.Deps{Permissions: gate, Notices: board, Photos: stg}
	previewSize := hal.Size{Width: cfg.Camera.PreviewWidth, Height: cfg.Camera.PreviewHeight}

	manager := v4l.NewManager(ctx, []string{cfg.Camera.Device},
		v4l.WithPreviewLimit(previewSize),
		v4l.WithWarmupFrames(cfg.Camera.WarmupFrames),
	)
	l := launcher.New()
	l.Register(camera2.Name, func() screen.Screen {
		return camera2.New(manager, deps)
	})
	l.Register(camerax.Name, func() screen.Screen {
		return camerax.New(camera.New(ctx, cfg.Camera.Device), deps, previewSize)
	})
	defer l.Close()

	share := webdav.New(ctx, cfg.Webdav.Port, stg.Root())
	if cfg.Webdav.AutoStart {
		share.Start()
	}
	defer share.Stop()

	srv := &server{
		launcher:   l,
		gate:       gate,
		board:      board,
		stg:        stg,
		share:      share,
		thumbWidth: cfg.Storage.ThumbWidth,
		exportFPS:  cfg.Storage.ExportFPS,
	}

	if cfg.Mirror.Enabled {
		m, err := mirror.New(ctx, cfg.Mirror)
		if err != nil {
			logger.Warnf("mirror disabled: %s", err)
		} else {
			stg.OnSaved(m.OnSaved)
		}
	}
	if cfg.MQTT.Enabled {
		if a, err := startAnnouncer(cfg.MQTT, srv); err != nil {
			logger.Warnf("mqtt disabled: %s", err)
		} else {
			stg.OnSaved(a.OnSaved)
			defer a.Close()
		}
	}
	if cfg.Button.Enabled {
		b, err := button.Open(button.NewDriver(cfg.Button.Mock), cfg.Button.Pin, cfg.Debounce())
		if err != nil {
			logger.Warnf("button disabled: %s", err)
		} else {
			defer b.Close()
			go b.Run(ctx, func() {
				if _, err := srv.captureActive(cfg.Button.Rotation); err != nil {
					logger.Warnf("button capture: %s", err)
				}
			})
		}
	}

	// init gin
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	if cfg.Server.Statics != "" {
		if err := registerStaticsDir(r, cfg.Server.Statics, "/"); err != nil {
			logger.Warnf("no ui statics: %s", err)
		}
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	srv.register(r)

	utils.ListenAndServe(r, cfg.Server.Port)
}

func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}
	if *staticsDir != "" {
		cfg.Server.Statics = *staticsDir
	}
}

func startAnnouncer(cfg config.MQTTConfig, srv *server) (*announce.Announcer, error) {
	cli, err := announce.Dial(cfg)
	if err != nil {
		return nil, err
	}
	a := announce.New(cli, cfg.Topic)
	err = a.HandleCaptures(func(rotation int) error {
		_, err := srv.captureActive(rotation)
		return err
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("subscribe %s: %w", a.CommandTopic(), err)
	}

	return a, nil
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}
