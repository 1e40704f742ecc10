// Package clock supplies the wall clock used to name photos. Boards without a
// real-time clock boot with a wrong time, so NTP can correct it.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"

	"twin-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// NTP is the system clock shifted by the offset last measured against an NTP
// server. Until the first successful sync it equals the system clock.
type NTP struct {
	server string
	query  func(server string) (time.Duration, error)

	lock   sync.RWMutex
	offset time.Duration
	synced bool
}

func NewNTP(server string) *NTP {
	return &NTP{server: server, query: queryOffset}
}

func queryOffset(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err = resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

func (c *NTP) Now() time.Time {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return time.Now().Add(c.offset)
}

func (c *NTP) Offset() (time.Duration, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.offset, c.synced
}

// Sync measures the offset once.
func (c *NTP) Sync() error {
	offset, err := c.query(c.server)
	if err != nil {
		return err
	}
	c.lock.Lock()
	c.offset = offset
	c.synced = true
	c.lock.Unlock()
	logger.Infof("clock: offset to %s is %s", c.server, offset)

	return nil
}

// Run syncs now and then every interval until ctx is done.
func (c *NTP) Run(ctx context.Context, interval time.Duration) {
	if err := c.Sync(); err != nil {
		logger.Warnf("clock: sync with %s failed: %s", c.server, err)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Sync(); err != nil {
				logger.Warnf("clock: sync with %s failed: %s", c.server, err)
			}
		}
	}
}
