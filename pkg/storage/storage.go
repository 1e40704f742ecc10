// Package storage writes captured photos under one root directory.
//
// Photos are named after the capture time in whole seconds, so two captures
// within the same second share a file; the later one overwrites it.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"twin-shutter/pkg/clock"
	"twin-shutter/pkg/storage/consts"
	"twin-shutter/pkg/storage/util"
	"twin-shutter/pkg/types"
	"twin-shutter/pkg/utils"
	"twin-shutter/pkg/utils/image"
	"twin-shutter/pkg/video"
)

var (
	ErrInvalidName = errors.New("invalid photo name")
	ErrNoPhotos    = errors.New("no photos")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Info struct {
	Count       int       `json:"count"`
	LatestImage string    `json:"latestImage"`
	UpdateAt    time.Time `json:"updateAt"`
}

// Listener is told about every saved photo, on its own goroutine.
type Listener func(types.Photo)

type Storage struct {
	root  string
	clock clock.Clock

	lock      sync.Mutex
	listeners []Listener
}

func New(root string, c clock.Clock) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root can not be empty")
	}
	if c == nil {
		c = clock.System{}
	}
	if err := util.MkdirAll(root); err != nil {
		return nil, err
	}
	s := &Storage{root: root, clock: c}
	if err := s.checkInitInfo(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) Close() error {
	return nil
}

// FileName is the photo name for a capture taken at t.
func FileName(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + consts.DefaultImageExt
}

// NewPhotoPath returns the path for a capture taken now.
func (s *Storage) NewPhotoPath() string {
	return filepath.Join(s.root, FileName(s.clock.Now()))
}

// OnSaved registers l for every later Save.
func (s *Storage) OnSaved(l Listener) {
	s.lock.Lock()
	s.listeners = append(s.listeners, l)
	s.lock.Unlock()
}

// Save writes data verbatim to path, replacing an existing file.
func (s *Storage) Save(path string, data []byte) error {
	if err := os.WriteFile(path, data, consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("save photo: %w", err)
	}
	photo := types.Photo{
		Name:    filepath.Base(path),
		Path:    path,
		Bytes:   len(data),
		SavedAt: s.clock.Now(),
	}

	s.lock.Lock()
	info, err := s.loadInfo()
	if err != nil {
		logger.Warnf("storage: %s, rebuilding", err)
		info = &Info{}
	}
	info.Count++
	info.LatestImage = photo.Name
	if err = s.dumpInfo(info); err != nil {
		logger.Warnf("storage: dump info: %s", err)
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.lock.Unlock()

	logger.Infof("storage: saved %s (%s)", path, humanize.Bytes(uint64(len(data))))
	for _, l := range listeners {
		go l(photo)
	}

	return nil
}

func (s *Storage) LatestImageName() (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadInfo()
	if err != nil {
		return "", err
	}
	if info.LatestImage == "" {
		return "", ErrNoPhotos
	}

	return info.LatestImage, nil
}

// List returns the photos under the root, newest first.
func (s *Storage) List() ([]types.File, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	res := make([]types.File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), consts.DefaultImageExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		res = append(res, types.File{
			Name:    e.Name(),
			Size:    humanize.Bytes(uint64(fi.Size())),
			Bytes:   fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name > res[j].Name
	})

	return res, nil
}

func (s *Storage) GetImagePath(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, consts.DefaultImageExt) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, name), nil
}

func (s *Storage) GetImage(name string) ([]byte, error) {
	p, err := s.GetImagePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("picture not found, %w", err)
	}

	return data, nil
}

// Thumbnail returns a JPEG of photo name scaled to width.
func (s *Storage) Thumbnail(name string, width int) ([]byte, error) {
	data, err := s.GetImage(name)
	if err != nil {
		return nil, err
	}
	if width <= 0 {
		width = consts.DefaultThumbWidth
	}

	return image.Thumbnail(data, width)
}

// Export packs every photo, oldest first, into an MJPEG AVI under the export
// directory and returns its path.
func (s *Storage) Export(fps int) (string, error) {
	files, err := s.List()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoPhotos
	}
	if fps <= 0 {
		fps = consts.DefaultExportFPS
	}
	first, err := s.GetImage(files[len(files)-1].Name)
	if err != nil {
		return "", err
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(first))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", files[len(files)-1].Name, err)
	}

	dir := filepath.Join(s.root, consts.DefaultExportDir)
	if err = util.MkdirAll(dir); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, strconv.FormatInt(s.clock.Now().Unix(), 10)+consts.DefaultVideoExt)
	b, err := video.NewBuilder(dst, cfg.Width, cfg.Height, fps)
	if err != nil {
		return "", err
	}
	for i := len(files) - 1; i >= 0; i-- {
		frame, err := s.GetImage(files[i].Name)
		if err != nil {
			logger.Warnf("export: skip %s: %s", files[i].Name, err)
			continue
		}
		if err = b.Add(frame); err != nil {
			_ = b.Close()
			return "", err
		}
	}
	if err = b.Close(); err != nil {
		return "", err
	}
	logger.Infof("export: %d frames -> %s", b.GetCnt(), dst)

	return dst, nil
}

func (s *Storage) infoPath() string {
	return filepath.Join(s.root, consts.DefaultInfoFile)
}

func (s *Storage) loadInfo() (*Info, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read image info err: %w", err)
	}
	info := &Info{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal image info err: %w", err)
	}

	return info, nil
}

func (s *Storage) dumpInfo(info *Info) error {
	info.UpdateAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(s.infoPath(), data, consts.DefaultFilePerm)
}

func (s *Storage) checkInitInfo() error {
	_, err := os.Stat(s.infoPath())
	if os.IsNotExist(err) {
		return s.dumpInfo(&Info{})
	}

	return err
}
