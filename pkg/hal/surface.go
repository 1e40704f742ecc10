package hal

import "sync"

// Surface is a preview target. Frames written to it are kept latest-first:
// a slow consumer loses old frames, never blocks the producer.
type Surface struct {
	name string

	lock      sync.Mutex
	size      Size
	available bool
	listener  func(*Surface)
	frames    chan []byte
}

func NewSurface(name string) *Surface {
	return &Surface{
		name:   name,
		frames: make(chan []byte, 1),
	}
}

func (s *Surface) Name() string {
	return s.name
}

func (s *Surface) TargetSize() Size {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.size
}

// SetDefaultBufferSize sets the size producers should stream at.
func (s *Surface) SetDefaultBufferSize(size Size) {
	s.lock.Lock()
	s.size = size
	s.lock.Unlock()
}

// SetListener registers fn to run when the surface becomes available.
func (s *Surface) SetListener(fn func(*Surface)) {
	s.lock.Lock()
	s.listener = fn
	s.lock.Unlock()
}

// SetAvailable marks the surface usable and fires the listener once.
func (s *Surface) SetAvailable() {
	s.lock.Lock()
	if s.available {
		s.lock.Unlock()
		return
	}
	s.available = true
	fn := s.listener
	s.lock.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (s *Surface) IsAvailable() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.available
}

// Offer hands a frame to the consumer, replacing an unread one.
func (s *Surface) Offer(frame []byte) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// Frames is the consumer side of the surface.
func (s *Surface) Frames() <-chan []byte {
	return s.frames
}
