// Package notice keeps the transient messages (toasts) shown to the user.
package notice

import (
	"sync"
	"time"
)

type Length string

const (
	Short Length = "short"
	Long  Length = "long"
)

const defaultKeep = 50

type Notice struct {
	ID     int64     `json:"id"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Length Length    `json:"length"`
	At     time.Time `json:"at"`
}

// Board stores recent notices and fans new ones out to subscribers.
type Board struct {
	keep int

	lock    sync.Mutex
	recent  []Notice
	nextID  int64
	subs    map[int64]chan Notice
	nextSub int64
}

func NewBoard(keep int) *Board {
	if keep <= 0 {
		keep = defaultKeep
	}
	return &Board{keep: keep, subs: make(map[int64]chan Notice)}
}

// Show publishes a notice. Subscribers that are not keeping up miss it.
func (b *Board) Show(source, text string, length Length) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.nextID++
	n := Notice{ID: b.nextID, Source: source, Text: text, Length: length, At: time.Now()}
	b.recent = append(b.recent, n)
	if len(b.recent) > b.keep {
		b.recent = b.recent[len(b.recent)-b.keep:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Recent returns the kept notices, oldest first.
func (b *Board) Recent() []Notice {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]Notice(nil), b.recent...)
}

// Subscribe returns a channel of new notices and a func that ends the
// subscription and closes the channel.
func (b *Board) Subscribe() (<-chan Notice, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.nextSub++
	id := b.nextSub
	ch := make(chan Notice, 16)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.lock.Lock()
			delete(b.subs, id)
			b.lock.Unlock()
			close(ch)
		})
	}
}
