package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/vincent-vinf/go-jsend"

	"twin-shutter/pkg/hal"
	"twin-shutter/pkg/launcher"
	"twin-shutter/pkg/notice"
	"twin-shutter/pkg/ov"
	"twin-shutter/pkg/permission"
	"twin-shutter/pkg/screen"
	"twin-shutter/pkg/storage"
	"twin-shutter/pkg/utils/ps"
	"twin-shutter/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"
)

var ErrNoScreen = errors.New("no screen launched")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type server struct {
	launcher *launcher.Launcher
	gate     *permission.Gate
	board    *notice.Board
	stg      *storage.Storage
	share    *webdav.Webdav

	thumbWidth int
	exportFPS  int
}

func (s *server) register(r gin.IRouter) {
	apiRouter := r.Group("/api")

	launcherRouter := apiRouter.Group("/launcher")
	launcherRouter.GET("", s.getLauncher)
	launcherRouter.POST("/:name", s.launch)

	screenRouter := apiRouter.Group("/screen")
	screenRouter.GET("", s.getScreen)
	screenRouter.POST("/capture", s.capture)
	screenRouter.GET("/preview", s.preview)

	permissionRouter := apiRouter.Group("/permission")
	permissionRouter.GET("", s.getPermission)
	permissionRouter.PUT("", s.answerPermission)

	noticeRouter := apiRouter.Group("/notices")
	noticeRouter.GET("", s.listNotices)
	noticeRouter.GET("/ws", s.streamNotices)

	photoRouter := apiRouter.Group("/photos")
	photoRouter.GET("", s.listPhotos)
	photoRouter.GET("/latest", s.latestPhoto)
	photoRouter.GET("/:name", s.getPhoto)
	photoRouter.GET("/:name/thumb", s.getThumbnail)
	photoRouter.POST("/export", s.exportPhotos)

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/status", s.deviceStatus)
	deviceRouter.PUT("/webdav", s.ctlWebdav)
}

func (s *server) getLauncher(c *gin.Context) {
	res := ov.Launcher{Choices: s.launcher.Names()}
	if sc, _, ok := s.launcher.Active(); ok {
		res.Active = sc.Name()
	}
	c.JSON(http.StatusOK, jsend.Success(res))
}

func (s *server) launch(c *gin.Context) {
	sc, err := s.launcher.Launch(c.Param("name"))
	if err != nil {
		if errors.Is(err, launcher.ErrUnknownScreen) {
			c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
			return
		}
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(ov.Screen{Name: sc.Name(), State: sc.State()}))
}

func (s *server) getScreen(c *gin.Context) {
	sc, _, ok := s.launcher.Active()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(ErrNoScreen.Error()))
		return
	}
	c.JSON(http.StatusOK, jsend.Success(ov.Screen{Name: sc.Name(), State: sc.State()}))
}

// captureActive captures on the active screen. rotation is in degrees or a
// quarter-turn index.
func (s *server) captureActive(rotation int) (screen.Screen, error) {
	r, err := hal.ParseRotation(rotation)
	if err != nil {
		return nil, err
	}
	sc, _, ok := s.launcher.Active()
	if !ok {
		return nil, ErrNoScreen
	}

	return sc, sc.Capture(r)
}

func (s *server) capture(c *gin.Context) {
	rotation, err := strconv.Atoi(c.DefaultQuery("rotation", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("invalid rotation %q", c.Query("rotation"))))
		return
	}
	sc, err := s.captureActive(rotation)
	switch {
	case err == nil:
	case errors.Is(err, hal.ErrInvalidRotation):
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	case errors.Is(err, ErrNoScreen), errors.Is(err, screen.ErrNotPreviewing):
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
		return
	default:
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, jsend.Success(ov.Capture{Screen: sc.Name(), Rotation: rotation}))
}

func (s *server) preview(c *gin.Context) {
	_, surface, ok := s.launcher.Active()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(ErrNoScreen.Error()))
		return
	}

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	frames := surface.Frames()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame := <-frames:
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				logger.Debugf("preview client gone: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func (s *server) getPermission(c *gin.Context) {
	req, ok := s.gate.Pending()
	res := ov.PermissionPrompt{Pending: ok}
	if ok {
		res.Request = &req
	}
	c.JSON(http.StatusOK, jsend.Success(res))
}

func (s *server) answerPermission(c *gin.Context) {
	var answer ov.PermissionAnswer
	if err := c.ShouldBindJSON(&answer); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	granted, err := s.gate.Answer(*answer.Granted)
	if err != nil {
		if errors.Is(err, permission.ErrNoPendingRequest) {
			c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
			return
		}
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(ov.PermissionResult{Granted: granted}))
}

func (s *server) listNotices(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(s.board.Recent()))
}

func (s *server) streamNotices(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("failed to upgrade notices websocket: %s", err)
		return
	}
	defer conn.Close()

	notices, cancel := s.board.Subscribe()
	defer cancel()

	// the client never sends anything; a read error means it left
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case n := <-notices:
			msg, err := json.Marshal(n)
			if err != nil {
				logger.Errorf("marshal notice: %s", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *server) listPhotos(c *gin.Context) {
	files, err := s.stg.List()
	if err != nil {
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(files))
}

func (s *server) latestPhoto(c *gin.Context) {
	name, err := s.stg.LatestImageName()
	if err != nil {
		photoErr(c, err)
		return
	}
	s.servePhoto(c, name)
}

func (s *server) getPhoto(c *gin.Context) {
	s.servePhoto(c, c.Param("name"))
}

func (s *server) servePhoto(c *gin.Context, name string) {
	p, err := s.stg.GetImagePath(name)
	if err != nil {
		photoErr(c, err)
		return
	}
	if _, err := os.Stat(p); err != nil {
		photoErr(c, err)
		return
	}
	c.File(p)
}

func (s *server) getThumbnail(c *gin.Context) {
	width := s.thumbWidth
	if w := c.Query("width"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("invalid width %q", w)))
			return
		}
		width = n
	}
	data, err := s.stg.Thumbnail(c.Param("name"), width)
	if err != nil {
		photoErr(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (s *server) exportPhotos(c *gin.Context) {
	req := ov.ExportRequest{FPS: s.exportFPS}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	p, err := s.stg.Export(req.FPS)
	if err != nil {
		photoErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(ov.Export{Name: filepath.Base(p), Path: p}))
}

func (s *server) deviceStatus(c *gin.Context) {
	st, err := ps.Collect(s.stg.Root())
	if err != nil {
		internalErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(ov.DeviceStatus{
		Status: st,
		Webdav: ov.Webdav{Running: s.share.Running(), Port: s.share.Port()},
	}))
}

func (s *server) ctlWebdav(c *gin.Context) {
	op := c.Query("op")
	switch op {
	case webDavStart:
		if s.share.Running() {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		s.share.Start()
		c.JSON(http.StatusOK, jsend.Success(ov.Webdav{Running: true, Port: s.share.Port()}))
	case webDavShutdown:
		if !s.share.Running() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		s.share.Stop()
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func photoErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
	case errors.Is(err, storage.ErrNoPhotos), errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
	default:
		internalErr(c, err)
	}
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
