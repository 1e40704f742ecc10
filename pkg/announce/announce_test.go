package announce

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"twin-shutter/pkg/types"
)

type published struct {
	topic   string
	payload []byte
}

type recordingClient struct {
	published []published
	handlers  map[string]func(string, []byte)
	closed    bool
}

func (r *recordingClient) Publish(topic string, _ byte, _ bool, payload []byte) error {
	r.published = append(r.published, published{topic: topic, payload: payload})
	return nil
}

func (r *recordingClient) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	if r.handlers == nil {
		r.handlers = make(map[string]func(string, []byte))
	}
	r.handlers[topic] = handler
	return nil
}

func (r *recordingClient) Close() {
	r.closed = true
}

func TestOnSavedPublishes(t *testing.T) {
	cli := &recordingClient{}
	a := New(cli, "twin-shutter/photos")
	at := time.Unix(1700000000, 0).UTC()

	a.OnSaved(types.Photo{Name: "1700000000.jpg", Path: "/x/1700000000.jpg", Bytes: 42, SavedAt: at})

	if len(cli.published) != 1 || cli.published[0].topic != "twin-shutter/photos" {
		t.Fatalf("published = %+v", cli.published)
	}
	var msg Message
	if err := json.Unmarshal(cli.published[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Name != "1700000000.jpg" || msg.Bytes != 42 || !msg.SavedAt.Equal(at) {
		t.Errorf("message = %+v", msg)
	}
}

func TestHandleCaptures(t *testing.T) {
	cli := &recordingClient{}
	a := New(cli, "t")

	var got []int
	err := a.HandleCaptures(func(rotation int) error {
		got = append(got, rotation)
		if rotation == 270 {
			return errors.New("not previewing")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	h := cli.handlers["t/capture"]
	if h == nil {
		t.Fatal("no subscription on t/capture")
	}
	h("t/capture", []byte(`{"rotation":90}`))
	h("t/capture", nil)
	h("t/capture", []byte(`{`))
	h("t/capture", []byte(`{"rotation":270}`))

	if len(got) != 3 || got[0] != 90 || got[1] != 0 || got[2] != 270 {
		t.Errorf("captures = %v, want [90 0 270]", got)
	}

	a.Close()
	if !cli.closed {
		t.Error("Close() did not close the client")
	}
}
