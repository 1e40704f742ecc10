// Package button watches a push button wired between a GPIO pin and ground.
package button

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"

	"twin-shutter/pkg/utils"
)

const pollInterval = 5 * time.Millisecond

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Pin is the part of rpio.Pin the button reads.
type Pin interface {
	Input()
	PullUp()
	Read() rpio.State
}

type Driver interface {
	Open() error
	Pin(n int) Pin
	Close() error
}

// RPiDriver maps the SoC GPIO registers through go-rpio.
type RPiDriver struct{}

func (RPiDriver) Open() error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return nil
}

func (RPiDriver) Pin(n int) Pin {
	return rpio.Pin(n)
}

func (RPiDriver) Close() error {
	return rpio.Close()
}

// MockPin is a pin whose level is set by hand. It starts released (high).
type MockPin struct {
	low atomic.Bool
}

func (p *MockPin) Input() {}
func (p *MockPin) PullUp() {}

func (p *MockPin) Read() rpio.State {
	if p.low.Load() {
		return rpio.Low
	}
	return rpio.High
}

// Set drives the pin; pressed pulls it low.
func (p *MockPin) Set(pressed bool) {
	p.low.Store(pressed)
}

// MockDriver hands out MockPins, for development away from the board.
type MockDriver struct {
	pins map[int]*MockPin
}

func NewMockDriver() *MockDriver {
	return &MockDriver{pins: make(map[int]*MockPin)}
}

func (m *MockDriver) Open() error {
	return nil
}

func (m *MockDriver) Pin(n int) Pin {
	p, ok := m.pins[n]
	if !ok {
		p = &MockPin{}
		m.pins[n] = p
	}
	return p
}

func (m *MockDriver) Close() error {
	return nil
}

func NewDriver(mock bool) Driver {
	if mock {
		logger.Info("button: using mock GPIO driver")
		return NewMockDriver()
	}
	return RPiDriver{}
}

type Button struct {
	drv      Driver
	pin      Pin
	number   int
	debounce time.Duration
}

// Open configures pin n as a pulled-up input.
func Open(drv Driver, n int, debounce time.Duration) (*Button, error) {
	if err := drv.Open(); err != nil {
		return nil, err
	}
	p := drv.Pin(n)
	p.Input()
	p.PullUp()

	return &Button{drv: drv, pin: p, number: n, debounce: debounce}, nil
}

// Run calls onPress once per press until ctx is done. A press is a low level
// that stays low for the debounce time.
func (b *Button) Run(ctx context.Context, onPress func()) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	stable := rpio.High
	last := rpio.High
	var since time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			level := b.pin.Read()
			if level != last {
				last = level
				since = now
				continue
			}
			if level == stable || now.Sub(since) < b.debounce {
				continue
			}
			stable = level
			if stable == rpio.Low {
				logger.Debugf("button: pin %d pressed", b.number)
				onPress()
			}
		}
	}
}

func (b *Button) Close() error {
	return b.drv.Close()
}
