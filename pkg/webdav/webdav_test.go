package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlerListsPhotos(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1700000000.jpg"), []byte{0xff, 0xd8}, 0o600); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(Handler(dir))
	defer srv.Close()

	req, err := http.NewRequest("PROPFIND", srv.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Depth", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "1700000000.jpg") {
		t.Errorf("listing does not contain the photo: %s", body)
	}
}

func TestStartStop(t *testing.T) {
	w := New(context.Background(), 0, t.TempDir())
	if w.Running() {
		t.Fatal("running before Start")
	}
	w.Start()
	w.Start()
	if !w.Running() {
		t.Error("not running after Start")
	}
	w.Stop()
	if w.Running() {
		t.Error("running after Stop")
	}
}
