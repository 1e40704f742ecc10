package hal

import (
	"errors"
	"sync"
	"time"
)

var ErrNoImage = errors.New("no image available")

// Image is one encoded frame held by an ImageReader. It counts against the
// reader's buffer pool until Close is called.
type Image struct {
	data        []byte
	timestamp   time.Time
	orientation int

	reader *ImageReader
	once   sync.Once
}

func (i *Image) Bytes() []byte {
	return i.data
}

func (i *Image) Timestamp() time.Time {
	return i.timestamp
}

// Orientation is the JPEG orientation requested for the capture.
func (i *Image) Orientation() int {
	return i.orientation
}

// Close returns the buffer to the reader. Only the first call counts.
func (i *Image) Close() {
	i.once.Do(func() {
		i.reader.release()
	})
}

// ImageReader is a capture target that turns frames into Images. At most
// maxImages may be outstanding; frames arriving beyond that are dropped.
type ImageReader struct {
	size      Size
	format    Format
	maxImages int

	lock        sync.Mutex
	queue       []*Image
	outstanding int
	released    int
	dropped     int
	listener    func(*ImageReader)
	handler     Handler
	closed      bool
}

func NewImageReader(size Size, format Format, maxImages int) *ImageReader {
	if maxImages < 1 {
		maxImages = 1
	}
	return &ImageReader{size: size, format: format, maxImages: maxImages}
}

func (r *ImageReader) TargetSize() Size {
	return r.size
}

func (r *ImageReader) Format() Format {
	return r.format
}

// SetOnImageAvailableListener registers fn to be posted to h whenever a new
// image is queued.
func (r *ImageReader) SetOnImageAvailableListener(fn func(*ImageReader), h Handler) {
	r.lock.Lock()
	r.listener = fn
	r.handler = h
	r.lock.Unlock()
}

// AcquireLatestImage returns the newest queued image and releases any older
// ones still queued.
func (r *ImageReader) AcquireLatestImage() (*Image, error) {
	r.lock.Lock()
	if len(r.queue) == 0 {
		r.lock.Unlock()
		return nil, ErrNoImage
	}
	latest := r.queue[len(r.queue)-1]
	stale := r.queue[:len(r.queue)-1]
	r.queue = nil
	r.lock.Unlock()

	for _, img := range stale {
		img.Close()
	}

	return latest, nil
}

// Deliver is called by implementations when a frame for this reader is ready.
// It reports whether the frame was queued.
func (r *ImageReader) Deliver(data []byte, orientation int) bool {
	r.lock.Lock()
	if r.closed || r.outstanding >= r.maxImages {
		r.dropped++
		r.lock.Unlock()
		return false
	}
	img := &Image{
		data:        data,
		timestamp:   time.Now(),
		orientation: orientation,
		reader:      r,
	}
	r.outstanding++
	r.queue = append(r.queue, img)
	fn, h := r.listener, r.handler
	r.lock.Unlock()

	if fn == nil {
		return true
	}
	if !Post(h, func() { fn(r) }) {
		// nobody will acquire it
		r.unqueue(img)
		img.Close()
	}

	return true
}

// Close releases every queued image; images already acquired stay valid until
// their own Close.
func (r *ImageReader) Close() {
	r.lock.Lock()
	r.closed = true
	queued := r.queue
	r.queue = nil
	r.lock.Unlock()

	for _, img := range queued {
		img.Close()
	}
}

// Outstanding is the number of images not yet released.
func (r *ImageReader) Outstanding() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.outstanding
}

// Released is the number of images returned to the pool so far.
func (r *ImageReader) Released() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.released
}

func (r *ImageReader) Dropped() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.dropped
}

func (r *ImageReader) release() {
	r.lock.Lock()
	r.outstanding--
	r.released++
	r.lock.Unlock()
}

func (r *ImageReader) unqueue(img *Image) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i, q := range r.queue {
		if q == img {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}
