package clock

import (
	"errors"
	"testing"
	"time"
)

func TestNTPOffset(t *testing.T) {
	c := NewNTP("pool.example")
	c.query = func(string) (time.Duration, error) { return time.Hour, nil }

	if _, synced := c.Offset(); synced {
		t.Fatal("clock should not be synced before Sync")
	}
	if err := c.Sync(); err != nil {
		t.Fatal(err)
	}
	offset, synced := c.Offset()
	if !synced || offset != time.Hour {
		t.Fatalf("offset = %s, synced = %v", offset, synced)
	}
	if d := c.Now().Sub(time.Now()); d < 59*time.Minute {
		t.Fatalf("Now is not shifted by the offset: %s", d)
	}
}

func TestNTPSyncFailureKeepsOffset(t *testing.T) {
	c := NewNTP("pool.example")
	c.query = func(string) (time.Duration, error) { return time.Minute, nil }
	_ = c.Sync()
	c.query = func(string) (time.Duration, error) { return 0, errors.New("timeout") }
	if err := c.Sync(); err == nil {
		t.Fatal("expected the sync error")
	}
	if offset, _ := c.Offset(); offset != time.Minute {
		t.Fatalf("failed sync must keep the previous offset, got %s", offset)
	}
}

func TestFunc(t *testing.T) {
	at := time.Unix(1700000000, 0)
	if got := Func(func() time.Time { return at }).Now(); !got.Equal(at) {
		t.Fatalf("got %s", got)
	}
}
