// Package looper runs tasks one at a time on a dedicated goroutine.
//
// A Looper stands in for a background handler thread: callers Post work to it,
// the work runs in submission order, and QuitSafely drains whatever is already
// queued before the goroutine exits.
package looper

import (
	"sync"

	"go.uber.org/zap"

	"twin-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Looper struct {
	name string

	lock     sync.Mutex
	cond     *sync.Cond
	queue    []func()
	running  bool
	quitting bool
	done     chan struct{}
}

// New returns a looper that is not running yet.
func New(name string) *Looper {
	l := &Looper{name: name}
	l.cond = sync.NewCond(&l.lock)

	return l
}

// Start launches the goroutine. Starting a running looper is a no-op; starting
// one that is still draining waits for the drain to finish first.
func (l *Looper) Start() {
	l.lock.Lock()
	if l.running && l.quitting {
		done := l.done
		l.lock.Unlock()
		<-done
		l.lock.Lock()
	}
	defer l.lock.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.quitting = false
	l.done = make(chan struct{})
	go l.loop(l.done)
	logger.Debugf("looper %s: started", l.name)
}

// Post queues fn. It returns false when the looper is not running or is
// quitting; fn is then never run. Post never blocks, so tasks may post to
// their own looper.
func (l *Looper) Post(fn func()) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.running || l.quitting {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()

	return true
}

// QuitSafely stops accepting tasks, lets queued ones run and waits for the
// goroutine to exit. It must not be called from a task.
func (l *Looper) QuitSafely() {
	l.lock.Lock()
	if !l.running || l.quitting {
		l.lock.Unlock()
		return
	}
	l.quitting = true
	l.cond.Broadcast()
	done := l.done
	l.lock.Unlock()

	<-done
	logger.Debugf("looper %s: stopped", l.name)
}

// Running reports whether Post would currently accept a task.
func (l *Looper) Running() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.running && !l.quitting
}

func (l *Looper) loop(done chan<- struct{}) {
	for {
		l.lock.Lock()
		for len(l.queue) == 0 && !l.quitting {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.running = false
			l.quitting = false
			l.lock.Unlock()
			close(done)
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.lock.Unlock()

		l.run(fn)
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("looper %s: task panicked: %v", l.name, r)
		}
	}()
	fn()
}
