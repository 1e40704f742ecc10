package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"twin-shutter/pkg/types"
)

type recordingPutter struct {
	err     error
	bucket  string
	object  string
	data    []byte
	options minio.PutObjectOptions
}

func (r *recordingPutter) PutObject(_ context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if r.err != nil {
		return minio.UploadInfo{}, r.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	r.bucket, r.object, r.data, r.options = bucket, object, data, opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func savedPhoto(t *testing.T) types.Photo {
	t.Helper()
	p := filepath.Join(t.TempDir(), "1700000000.jpg")
	if err := os.WriteFile(p, []byte{0xff, 0xd8, 0xff, 0xd9}, 0o600); err != nil {
		t.Fatal(err)
	}
	return types.Photo{Name: "1700000000.jpg", Path: p, Bytes: 4, SavedAt: time.Unix(1700000000, 0)}
}

func TestUpload(t *testing.T) {
	put := &recordingPutter{}
	m := NewWithClient(put, "photos", "pi-01")

	if err := m.Upload(context.Background(), savedPhoto(t)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if put.bucket != "photos" || put.object != "pi-01/1700000000.jpg" {
		t.Errorf("put %s/%s", put.bucket, put.object)
	}
	if len(put.data) != 4 || put.options.ContentType != "image/jpeg" {
		t.Errorf("data = %x, content type = %q", put.data, put.options.ContentType)
	}
}

func TestUploadErrors(t *testing.T) {
	m := NewWithClient(&recordingPutter{err: errors.New("denied")}, "photos", "")
	if err := m.Upload(context.Background(), savedPhoto(t)); err == nil {
		t.Error("Upload() error = nil with a failing client")
	}

	m = NewWithClient(&recordingPutter{}, "photos", "")
	missing := types.Photo{Name: "1.jpg", Path: filepath.Join(t.TempDir(), "1.jpg")}
	if err := m.Upload(context.Background(), missing); err == nil {
		t.Error("Upload() error = nil for a missing file")
	}
}
